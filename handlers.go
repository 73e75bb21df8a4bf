package pubindex

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/eringen/pubindex/entry"
	"github.com/eringen/pubindex/index"
)

type pageResponse struct {
	Entries    []entry.Entry    `json:"entries"`
	Pagination index.Pagination `json:"pagination"`
}

type tagResponse struct {
	Tag     string        `json:"tag"`
	Label   string        `json:"label"`
	Total   int           `json:"total"`
	Entries []entry.Entry `json:"entries"`
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func queryWindow(c echo.Context) (index.Window, error) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return index.Window{}, err
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return index.Window{}, err
	}
	return index.Window{Limit: limit, Offset: offset}, nil
}

// httpError maps engine input errors to 400 and leaves the rest alone.
func httpError(err error) error {
	switch {
	case errors.Is(err, index.ErrInvalidBlog),
		errors.Is(err, index.ErrInvalidPath),
		errors.Is(err, index.ErrUnknownList):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return err
}

func (a *App) handleEntries(c echo.Context) error {
	page, err := queryInt(c, "page")
	if err != nil {
		return err
	}
	size, err := queryInt(c, "size")
	if err != nil {
		return err
	}
	opts := index.PageOptions{
		List:       c.QueryParam("list"),
		SortBy:     c.QueryParam("sort"),
		Order:      c.QueryParam("order"),
		PageNumber: page,
		PageSize:   size,
	}
	switch opts.SortBy {
	case "", "date", "id":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "sort must be date or id")
	}
	switch opts.Order {
	case "", "asc", "desc":
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "order must be asc or desc")
	}

	entries, p, err := a.Engine.GetPage(c.Request().Context(), c.Param("blog"), opts)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pageResponse{Entries: entries, Pagination: p})
}

func (a *App) handleEntry(c echo.Context) error {
	id := c.QueryParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	e, err := a.Engine.GetEntry(c.Request().Context(), c.Param("blog"), id)
	if err != nil {
		return httpError(err)
	}
	if e == nil {
		return echo.ErrNotFound
	}
	return c.JSON(http.StatusOK, e)
}

func (a *App) handleAdjacent(c echo.Context) error {
	id := c.QueryParam("id")
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	adj, err := a.Engine.AdjacentTo(c.Request().Context(), c.Param("blog"), id)
	if err != nil {
		return httpError(err)
	}
	if !adj.Found {
		return echo.ErrNotFound
	}
	return c.JSON(http.StatusOK, adj)
}

func (a *App) handlePopular(c echo.Context) error {
	w, err := queryWindow(c)
	if err != nil {
		return err
	}
	tags, err := a.Engine.Popular(c.Request().Context(), c.Param("blog"), w)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, tags)
}

func (a *App) handleTag(c echo.Context) error {
	w, err := queryWindow(c)
	if err != nil {
		return err
	}
	tag, err := url.PathUnescape(c.Param("tag"))
	if err != nil {
		tag = c.Param("tag")
	}
	ctx := c.Request().Context()
	blog := c.Param("blog")

	ids, label, total, err := a.Engine.TaggedPage(ctx, blog, tag, w)
	if err != nil {
		return httpError(err)
	}
	entries, err := a.Engine.GetEntries(ctx, blog, ids)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tagResponse{Tag: tag, Label: label, Total: total, Entries: entries})
}

func (a *App) handleRebuild(c echo.Context) error {
	blog := c.Param("blog")
	if !index.ValidBlogID(blog) {
		return httpError(index.ErrInvalidBlog)
	}
	if !a.rebuildLimiter.Allow(blog) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rebuild rate limit exceeded")
	}
	if err := a.Engine.Rebuild(c.Request().Context(), blog); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// filePath validates the blog and path parameters and returns the clean
// entry path together with its location on disk.
func (a *App) filePath(c echo.Context) (blog, p, dst string, err error) {
	blog = c.Param("blog")
	if !index.ValidBlogID(blog) {
		return "", "", "", httpError(index.ErrInvalidBlog)
	}
	p, err = index.CleanPath(c.QueryParam("path"))
	if err != nil {
		return "", "", "", httpError(err)
	}
	return blog, p, filepath.Join(a.blogDir(blog), filepath.FromSlash(p)), nil
}

func (a *App) handlePutFile(c echo.Context) error {
	blog, p, dst, err := a.filePath(c)
	if err != nil {
		return err
	}
	content, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxFileSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
		}
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dst, content, 0o644); err != nil {
		return err
	}
	if err := a.Engine.Write(c.Request().Context(), blog, p, content); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleDeleteFile(c echo.Context) error {
	blog, p, dst, err := a.filePath(c)
	if err != nil {
		return err
	}
	info, err := os.Stat(dst)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if info == nil || !info.IsDir() {
		if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := a.Engine.Delete(c.Request().Context(), blog, p); err != nil {
			return httpError(err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	// a directory goes with every file under it
	var files []string
	err = filepath.WalkDir(dst, func(fp string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(a.blogDir(blog), fp)
		if err != nil {
			return err
		}
		files = append(files, "/"+filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	for _, f := range files {
		if err := a.Engine.Delete(c.Request().Context(), blog, f); err != nil {
			return httpError(err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleFeed(c echo.Context) error {
	entries, _, err := a.Engine.GetPage(c.Request().Context(), c.Param("blog"), index.PageOptions{PageSize: feedSize})
	if err != nil {
		return httpError(err)
	}
	return a.renderRSS(c, c.Param("blog"), entries)
}

func (a *App) handleSitemap(c echo.Context) error {
	blog := c.Param("blog")
	var all []entry.Entry
	for _, list := range []string{index.ListEntries, index.ListPages} {
		for n := 1; ; n++ {
			entries, p, err := a.Engine.GetPage(c.Request().Context(), blog, index.PageOptions{
				List:       list,
				PageNumber: n,
				PageSize:   a.Engine.Config().MaxPageSize,
			})
			if err != nil {
				return httpError(err)
			}
			all = append(all, entries...)
			if p.Next == nil {
				break
			}
		}
	}
	return a.renderSitemap(c, blog, all)
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}
	if code >= 500 {
		c.Logger().Errorf("server error: %v", err)
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}

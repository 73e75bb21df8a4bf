package index

import (
	"github.com/google/uuid"

	"github.com/eringen/pubindex/entry"
)

// Lists an entry can be placed in. Every live entry is in exactly one.
const (
	ListEntries   = "entries"
	ListPages     = "pages"
	ListDrafts    = "drafts"
	ListScheduled = "scheduled"
	ListDeleted   = "deleted"
)

var lists = []string{ListEntries, ListPages, ListDrafts, ListScheduled, ListDeleted}

func validList(name string) bool {
	for _, l := range lists {
		if l == name {
			return true
		}
	}
	return false
}

// listFor returns the list an entry belongs in.
func listFor(e *entry.Entry) string {
	switch {
	case e.Deleted:
		return ListDeleted
	case e.Draft:
		return ListDrafts
	case e.Scheduled:
		return ListScheduled
	case e.Page:
		return ListPages
	}
	return ListEntries
}

// Key layout, all scoped by blog:
//
//	blog:{b}:list:{list}       ordered set, id by dateStamp
//	blog:{b}:tag:{tag}         ordered set, id by dateStamp
//	blog:{b}:tags              set of normalized tags
//	blog:{b}:tags:names        hash, tag -> first-seen label
//	blog:{b}:tags:slugs        hash, slug -> tag
//	blog:{b}:entry:{id}:tags   set, reverse map
//	blog:{b}:popular           ordered set, tag by member count
//	blog:{b}:meta              hash, hydration markers
//	blog:{b}:tmp:{uuid}        scratch space for hydration
const blogsKey = "blogs"

func blogPrefix(blogID string) string { return "blog:" + blogID + ":" }

func listKey(blogID, list string) string { return blogPrefix(blogID) + "list:" + list }

func tagKey(blogID, tag string) string { return blogPrefix(blogID) + "tag:" + tag }

func tagsKey(blogID string) string { return blogPrefix(blogID) + "tags" }

func tagNamesKey(blogID string) string { return blogPrefix(blogID) + "tags:names" }

func tagSlugsKey(blogID string) string { return blogPrefix(blogID) + "tags:slugs" }

func entryTagsKey(blogID, id string) string { return blogPrefix(blogID) + "entry:" + id + ":tags" }

func popularKey(blogID string) string { return blogPrefix(blogID) + "popular" }

func metaKey(blogID string) string { return blogPrefix(blogID) + "meta" }

func scratchPrefix(blogID string) string { return blogPrefix(blogID) + "tmp:" }

func scratchKey(blogID string) string { return scratchPrefix(blogID) + uuid.NewString() }

// hydration markers kept in the meta hash
const (
	markTags  = "tags:hydrated"
	markLists = "lists:hydrated"
)

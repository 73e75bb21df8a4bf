package main

import (
	"encoding/json"
	"fmt"

	"github.com/disiqueira/gotree/v3"
	"github.com/spf13/cobra"

	"github.com/eringen/pubindex/index"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <blog>",
	Short: "Rebuild every derived index of a blog",
	Long:  `Rebuilds the chronological lists, tag sets and popularity ranking of a blog from its stored entries.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		if err := eng.Rebuild(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to rebuild %s: %w", args[0], err)
		}
		fmt.Printf("Rebuilt %s.\n", args[0])
		return nil
	},
}

var pageCmd = &cobra.Command{
	Use:   "page <blog>",
	Short: "Print a page of a blog's list as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, _ := cmd.Flags().GetString("list")
		sortBy, _ := cmd.Flags().GetString("sort")
		order, _ := cmd.Flags().GetString("order")
		page, _ := cmd.Flags().GetInt("page")
		size, _ := cmd.Flags().GetInt("size")

		eng, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		entries, p, err := eng.GetPage(cmd.Context(), args[0], index.PageOptions{
			List:       list,
			SortBy:     sortBy,
			Order:      order,
			PageNumber: page,
			PageSize:   size,
		})
		if err != nil {
			return fmt.Errorf("failed to read page: %w", err)
		}

		output, err := json.MarshalIndent(struct {
			Entries    any              `json:"entries"`
			Pagination index.Pagination `json:"pagination"`
		}{entries, p}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format page output: %w", err)
		}
		fmt.Println(string(output))
		return nil
	},
}

var tagsCmd = &cobra.Command{
	Use:   "tags <blog>",
	Short: "List a blog's tags, most used first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		tree, _ := cmd.Flags().GetBool("tree")
		blog := args[0]

		eng, err := openEngine(nil)
		if err != nil {
			return err
		}
		defer eng.Close()

		tags, err := eng.Popular(cmd.Context(), blog, index.Window{Limit: limit})
		if err != nil {
			return fmt.Errorf("failed to list tags: %w", err)
		}
		if len(tags) == 0 {
			fmt.Println("No tags found.")
			return nil
		}

		if !tree {
			for _, t := range tags {
				fmt.Printf("%5d  %s\n", t.Count, t.Label)
			}
			return nil
		}

		root := gotree.New(blog)
		for _, t := range tags {
			node := root.Add(fmt.Sprintf("%s (%d)", t.Label, t.Count))
			ids, _, _, err := eng.TaggedPage(cmd.Context(), blog, t.Tag, index.Window{Limit: eng.Config().MaxPageSize})
			if err != nil {
				return fmt.Errorf("failed to list tag %s: %w", t.Tag, err)
			}
			for _, id := range ids {
				node.Add(id)
			}
		}
		fmt.Print(root.Print())
		return nil
	},
}

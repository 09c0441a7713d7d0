package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/trapcam/internal/gallery"
	"github.com/Brownie44l1/trapcam/internal/inference"
	"github.com/Brownie44l1/trapcam/internal/pager"
)

var (
	classifyFolder string
	classifyPage   int
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify one page of a folder and print the labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Development {
			return fmt.Errorf("classify needs a model; unset development")
		}
		folder := cfg.Folder
		if classifyFolder != "" {
			folder = classifyFolder
		}

		c := build(*cfg)
		defer c.close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		names, err := c.lister.List(ctx, folder)
		if err != nil {
			return err
		}
		h, err := c.registry.Load(ctx, cfg.ModelURL())
		if err != nil {
			return err
		}

		images := gallery.Bind(pager.ForPage(classifyPage), names, cfg.BaseURL, folder)
		pixels := gallery.LoadPixels(ctx, c.pixels, images[:], c.log)

		preds := c.adapter.Run(ctx, h, pixels)
		labels := inference.Labels(preds)

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(tw, "ID\tNAME\tLABEL\n")
		for i, img := range images {
			if img.Src == "" {
				continue
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\n", img.ID, img.Name, labels[i])
		}
		return tw.Flush()
	},
}

func init() {
	classifyCmd.Flags().StringVar(&classifyFolder, "folder", "", "image folder, defaults to the configured one")
	classifyCmd.Flags().IntVar(&classifyPage, "page", 0, "zero-based page of four images")
	rootCmd.AddCommand(classifyCmd)
}

/*
 * Copyright (c) 2025 Hardiyanto Y -Ebiet.
 * This software is part of the HDX (Hardix Audio) project.
 * This code is provided "as is", without warranty of any kind.
 */

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"impulse/internal/engine"
	"impulse/internal/filesystem"
	"impulse/internal/metadata"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(metaCmd)
	metaCmd.Flags().BoolP("json", "j", false, "Dump the metadata as JSON")
	metaCmd.Flags().StringP("art", "a", "", "Write embedded cover art to this file")
}

var metaCmd = &cobra.Command{
	Use:   "meta <file>",
	Short: "Show tags, duration and decoder of an audio file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := args[0]
		fs := filesystem.API()

		md, err := metadata.NewExtractor(fs.Fs).Extract(path)
		handleErr(err)

		if lo.Must(cmd.Flags().GetBool("json")) {
			b, err := json.MarshalIndent(md, "", "  ")
			handleErr(err)
			cmd.Println(string(b))
			return
		}

		printMetadata(cmd.OutOrStdout(), path, md)

		if src, err := engine.OpenFile(fs.Fs, path, engine.DefaultOptions()); err == nil {
			p := src.Track().Params
			fmt.Fprintf(cmd.OutOrStdout(), " DECODER       : %s %d Hz %d ch (%s)\n", p.Codec, p.SampleRate, p.Channels, src.Registry())
			src.Close()
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), " DECODER       : none (%v)\n", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), strings.Repeat("=", 60))

		if out := lo.Must(cmd.Flags().GetString("art")); out != "" {
			if len(md.CoverArt) == 0 {
				handleErr(fmt.Errorf("%s has no cover art", path))
			}
			handleErr(fs.WriteFile(out, md.CoverArt, 0o644))
			cmd.Printf(">> cover art written to %s\n", out)
		}
	},
}

func printMetadata(w io.Writer, path string, md metadata.TrackMetadata) {
	field := func(label, value string) {
		if value == "" {
			value = "-"
		}
		fmt.Fprintf(w, " %-14s: %s\n", label, value)
	}
	number := func(n, total int) string {
		switch {
		case n == 0:
			return ""
		case total == 0:
			return fmt.Sprint(n)
		}
		return fmt.Sprintf("%d/%d", n, total)
	}

	fmt.Fprintln(w, strings.Repeat("=", 60))
	field("FILE", path)
	field("TITLE", md.Title)
	field("ARTIST", md.Artist)
	field("ALBUM", md.Album)
	field("ALBUM ARTIST", md.AlbumArtist)
	field("GENRE", md.Genre)
	field("YEAR", lo.Ternary(md.Year > 0, fmt.Sprint(md.Year), ""))
	field("TRACK", number(md.TrackNumber, md.TrackTotal))
	field("DISC", number(md.DiscNumber, 0))
	field("DURATION", md.FormatDuration())
	if len(md.CoverArt) > 0 {
		field("ARTWORK", fmt.Sprintf("%s, %d bytes", md.CoverMIME, len(md.CoverArt)))
	}
	fmt.Fprintln(w, strings.Repeat("-", 60))
}

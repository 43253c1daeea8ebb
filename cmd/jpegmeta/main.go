// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Command jpegmeta prints and edits the metadata of JPEG files.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/bep/jpegmeta"
)

const usage = `Usage: jpegmeta [-v] <command> [arguments]

Commands:
  print FILE                        list segments, tags and comments
  copy [-preserve-order] IN OUT     parse IN and write it to OUT
  set-comment [-append] IN OUT TEXT replace (or add) the JPEG comment
  set-exif IN OUT NAME VALUE        set an Exif tag, e.g. Artist or GPSLatitude "51/1 30/1 0/1"
  set-iptc IN OUT NAME VALUE...     set an IPTC dataset, e.g. Keywords a b c
`

func main() {
	log.SetFlags(0)
	log.SetPrefix("jpegmeta: ")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	verbose := flag.Bool("v", false, "log warnings")
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	var opts jpegmeta.Options
	if *verbose {
		opts.Warnf = log.Printf
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	case "print":
		err = printCmd(os.Stdout, args, opts)
	case "copy":
		err = copyCmd(args, opts)
	case "set-comment":
		err = setCommentCmd(args, opts)
	case "set-exif":
		err = setExifCmd(args, opts)
	case "set-iptc":
		err = setIPTCCmd(args, opts)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func newFlagSet(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: jpegmeta %s %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

func nargs(fs *flag.FlagSet, args []string, n int, atLeast bool) {
	fs.Parse(args)
	if fs.NArg() == n || (atLeast && fs.NArg() > n) {
		return
	}
	fs.Usage()
	os.Exit(2)
}

// edit opens in, applies fn and writes the result to out.
func edit(in, out string, opts jpegmeta.Options, fn func(j *jpegmeta.JPEG) error) error {
	j, err := jpegmeta.Open(in, opts)
	if err != nil {
		return err
	}
	defer j.Close()
	if err := fn(j); err != nil {
		return err
	}
	return j.WriteFile(out)
}

func printCmd(w io.Writer, args []string, opts jpegmeta.Options) error {
	fs := newFlagSet("print", "FILE")
	nargs(fs, args, 1, false)

	j, err := jpegmeta.Open(fs.Arg(0), opts)
	if err != nil {
		return err
	}
	defer j.Close()

	fmt.Fprintln(w, "Segments:")
	for _, s := range j.StreamSegments() {
		var carrier string
		switch s {
		case j.ExifSegment():
			carrier = " (Exif)"
		case j.IPTCSegment():
			carrier = " (IPTC)"
		}
		fmt.Fprintf(w, "  %s%s\n", s, carrier)
	}
	if meta := j.Meta(); meta != nil {
		fmt.Fprintf(w, "Orientation: %s\n", meta.Orientation())
	}

	var tags []jpegmeta.TagInfo
	if err := j.Tags(func(ti jpegmeta.TagInfo) error {
		tags = append(tags, ti)
		return nil
	}); err != nil {
		return err
	}
	sort.SliceStable(tags, func(i, k int) bool {
		return tags[i].Source < tags[k].Source
	})
	if len(tags) > 0 {
		fmt.Fprintln(w, "Tags:")
	}
	for _, ti := range tags {
		fmt.Fprintf(w, "  %s %s %s: %v\n", ti.Source, ti.Namespace, ti.Tag, ti.Value)
	}

	comments, err := j.Comments()
	if err != nil {
		return err
	}
	for _, c := range comments {
		fmt.Fprintf(w, "Comment: %q\n", c)
	}
	return nil
}

func copyCmd(args []string, opts jpegmeta.Options) error {
	fs := newFlagSet("copy", "[-preserve-order] IN OUT")
	fs.BoolVar(&opts.PreserveSegmentOrder, "preserve-order", false, "keep the segment order of IN")
	nargs(fs, args, 2, false)

	return edit(fs.Arg(0), fs.Arg(1), opts, func(*jpegmeta.JPEG) error { return nil })
}

func setCommentCmd(args []string, opts jpegmeta.Options) error {
	fs := newFlagSet("set-comment", "[-append] IN OUT TEXT")
	add := fs.Bool("append", false, "add a comment instead of replacing all")
	nargs(fs, args, 3, false)

	return edit(fs.Arg(0), fs.Arg(1), opts, func(j *jpegmeta.JPEG) error {
		return j.SetComment(fs.Arg(2), *add)
	})
}

func setExifCmd(args []string, opts jpegmeta.Options) error {
	fs := newFlagSet("set-exif", "IN OUT NAME VALUE")
	nargs(fs, args, 4, false)

	name, s := fs.Arg(2), fs.Arg(3)
	return edit(fs.Arg(0), fs.Arg(1), opts, func(j *jpegmeta.JPEG) error {
		meta := j.Meta()
		if meta == nil {
			return fmt.Errorf("%s has no Exif data", fs.Arg(0))
		}
		v, err := meta.ParseTagValue(name, s)
		if err != nil {
			return err
		}
		return meta.SetTag(name, v)
	})
}

func setIPTCCmd(args []string, opts jpegmeta.Options) error {
	fs := newFlagSet("set-iptc", "IN OUT NAME VALUE...")
	nargs(fs, args, 3, true)

	return edit(fs.Arg(0), fs.Arg(1), opts, func(j *jpegmeta.JPEG) error {
		return j.SetIPTC(fs.Arg(2), fs.Args()[3:]...)
	})
}

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocketlm/internal/logger"
	"github.com/samcharles93/pocketlm/internal/tokenizer"
)

func vocabCmd() *cli.Command {
	var (
		encode string
		decode string
		list   bool
	)

	return &cli.Command{
		Name:  "vocab",
		Usage: "Inspect the active vocabulary and tokenize text",
		Flags: append(vocabFlags(),
			&cli.StringFlag{
				Name:        "encode",
				Usage:       "print the token ids for this text",
				Destination: &encode,
			},
			&cli.StringFlag{
				Name:        "decode",
				Usage:       "print the text for space- or comma-separated ids",
				Destination: &decode,
			},
			&cli.BoolFlag{
				Name:        "list",
				Usage:       "list every entry in id order",
				Destination: &list,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFromContext(ctx)
			applyModelConfig(cmd, &cfg)
			tok := tokenizer.New(vocabOptions(cfg, log))

			w := cmd.Root().Writer
			fmt.Fprintf(w, "source:     %s\n", tok.Source())
			fmt.Fprintf(w, "size:       %d\n", tok.VocabSize())
			fmt.Fprintf(w, "max length: %d\n", tok.MaxLength())
			fmt.Fprintf(w, "special:    pad=%d bos=%d eos=%d unk=%d\n", tok.PAD(), tok.BOS(), tok.EOS(), tok.UNK())

			if list {
				listVocabulary(w, tok.Vocabulary())
			}
			if cmd.IsSet("encode") {
				ids := tok.Encode(encode)
				parts := make([]string, len(ids))
				for i, id := range ids {
					parts[i] = strconv.Itoa(id)
				}
				fmt.Fprintf(w, "ids:        %s\n", strings.Join(parts, " "))
			}
			if cmd.IsSet("decode") {
				ids, err := parseIDs(decode)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "text:       %q\n", tok.Decode(ids))
			}
			return nil
		},
	}
}

func listVocabulary(w io.Writer, v *tokenizer.Vocabulary) {
	for _, id := range v.IDs() {
		tok, _ := v.Token(id)
		fmt.Fprintf(w, "%6d %q\n", id, tok)
	}
}

func parseIDs(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

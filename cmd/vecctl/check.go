package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/arena2036/vec-aas-uploader/internal/models"
	"github.com/arena2036/vec-aas-uploader/internal/utils/validator"
	"github.com/arena2036/vec-aas-uploader/pkg/converters"
	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

type checkResult struct {
	file    string
	size    int64
	problem string
}

func newCheckCmd(root *rootOptions) *cobra.Command {
	var parallel int

	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Check files against the upload acceptance rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := validator.NewFileValidator(root.log, validator.DefaultConfig())
			results := make([]checkResult, len(args))

			if parallel < 1 {
				parallel = 1
			}
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(parallel)
			for i, name := range args {
				i, name := i, name
				g.Go(func() error {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					results[i] = checkFile(v, name, root.log)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			failed := 0
			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.problem != "" {
					failed++
					fmt.Fprintf(out, "FAIL %s: %s\n", r.file, r.problem)
					continue
				}
				fmt.Fprintf(out, "OK   %s (%s)\n", r.file, validator.FormatFileSize(r.size))
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d files rejected", failed, len(args))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "files checked at once")
	return cmd
}

// checkFile applies the acceptance filter and then the parser, like a submission would.
func checkFile(v *validator.FileValidator, name string, log logger.Logger) checkResult {
	res := checkResult{file: name}

	st, err := os.Stat(name)
	if err != nil {
		res.problem = err.Error()
		return res
	}
	res.size = st.Size()

	info := models.FileInfo{Filename: filepath.Base(name), Size: st.Size()}
	if err := v.Accept(info); err != nil {
		if verr, ok := validator.AsValidationError(err); ok {
			res.problem = verr.Message
		} else {
			res.problem = err.Error()
		}
		return res
	}

	data, err := os.ReadFile(name)
	if err != nil {
		res.problem = err.Error()
		return res
	}
	if _, err := converters.ParseXML(data); err != nil {
		log.Debug("Parse failed", logger.String("file", name), logger.Error(err))
		res.problem = err.Error()
	}
	return res
}

package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/genx3d/genx3d/internal/corpus"
	"github.com/genx3d/genx3d/internal/embedding"
	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/resilience"
	"github.com/genx3d/genx3d/internal/store"
)

var (
	indexCorpus   string
	indexNoRemote bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed the example corpus into the local (and remote) index",
	Long:  "Loads the CAD example corpus, embeds every prompt and writes the vectors to the SQLite index. When a remote index is configured the same vectors are upserted there too.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("index"); err != nil {
			return err
		}
		if indexCorpus != "" {
			cfg.Index.Corpus = indexCorpus
		}

		examples, err := corpus.Load(cfg.Index.Corpus)
		if err != nil {
			return err
		}

		env := &appEnv{Breakers: resilience.NewBreakers(cfg.Resilience.Breaker())}
		defer env.Close()

		emb, err := env.initEmbedder(ctx)
		if err != nil {
			return err
		}
		if err := embedExamples(ctx, emb, examples, cfg.Index.Concurrency); err != nil {
			return err
		}

		if err := env.initLocal(ctx); err != nil {
			return err
		}
		if err := env.Local.Insert(ctx, examples...); err != nil {
			return err
		}
		count, err := env.Local.Count(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("local index updated",
			zap.String("path", cfg.Index.Path),
			zap.Int("examples", len(examples)),
			zap.Int("total", count),
			zap.String("embedder", emb.Name()),
		)

		var upserted int64
		if !indexNoRemote {
			upserted, err = upsertRemote(ctx, env, examples)
			if err != nil {
				return err
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d examples into %s (%d total)", len(examples), cfg.Index.Path, count)
		if env.Remote != nil {
			fmt.Fprintf(cmd.OutOrStdout(), ", %d upserted to %s", upserted, cfg.Remote.Provider)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

// embedExamples fills in every example's embedding, at most concurrency
// calls at a time. Each call is retried on transient errors.
func embedExamples(ctx context.Context, emb embedding.Embedder, examples []model.Example, concurrency int) error {
	retry := cfg.Resilience.Retry()
	retry.OnRetry = resilience.RetryLogger(resilience.BackendEmbedding, "index")
	timeout := cfg.Resilience.CallTimeout()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i := range examples {
		g.Go(func() error {
			vec, err := resilience.Do(gctx, retry, func(ctx context.Context) ([]float32, error) {
				return resilience.WithTimeout(ctx, timeout, func(ctx context.Context) ([]float32, error) {
					return emb.Embed(ctx, examples[i].Prompt)
				})
			})
			if err != nil {
				return eris.Wrapf(err, "embed example %s", examples[i].ID)
			}
			examples[i].Embedding = vec
			return nil
		})
	}
	return g.Wait()
}

// upsertRemote writes examples to the configured remote index, creating the
// pgvector table first when needed.
func upsertRemote(ctx context.Context, env *appEnv, examples []model.Example) (int64, error) {
	if err := env.initRemote(ctx); err != nil {
		return 0, err
	}
	if env.Remote == nil {
		return 0, nil
	}
	if pg, ok := env.Remote.(*store.PgVectorIndex); ok {
		if err := pg.Migrate(ctx); err != nil {
			return 0, err
		}
	}
	n, err := env.Remote.Upsert(ctx, examples)
	if err != nil {
		return n, eris.Wrapf(err, "upsert to %s", cfg.Remote.Provider)
	}
	zap.L().Info("remote index updated", zap.String("provider", cfg.Remote.Provider), zap.Int64("upserted", n))
	return n, nil
}

func init() {
	indexCmd.Flags().StringVar(&indexCorpus, "corpus", "", "corpus YAML file (default: built-in examples)")
	indexCmd.Flags().BoolVar(&indexNoRemote, "no-remote", false, "only update the local index")
	rootCmd.AddCommand(indexCmd)
}

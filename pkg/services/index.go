package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/catalog"
	"github.com/meridianmed/insight-engine/pkg/embedding"
	"github.com/meridianmed/insight-engine/pkg/vecindex"
)

// BuildIndex embeds every catalog descriptor and swaps them into the vector
// index. Existing entries are cleared only after embedding succeeds, so a
// failed rebuild leaves the previous index intact; dropped tables disappear
// on success.
func BuildIndex(ctx context.Context, cat *catalog.Catalog, embedder embedding.Provider, index *vecindex.Index, logger *zap.Logger) error {
	descriptors := cat.DescribeAll()
	if len(descriptors) == 0 {
		index.Clear()
		logger.Warn("no tables to index; schema retrieval will return nothing")
		return nil
	}

	texts := make([]string, len(descriptors))
	for i, desc := range descriptors {
		texts[i] = desc.CombinedText()
	}

	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed table descriptors: %w", err)
	}

	index.Clear()
	for i, desc := range descriptors {
		if err := index.Index(desc, vectors[i]); err != nil {
			return fmt.Errorf("index table %s: %w", desc.TableName, err)
		}
	}

	logger.Info("vector index built",
		zap.Int("tables", index.Len()), zap.Int("dimension", index.Dimension()))
	return nil
}

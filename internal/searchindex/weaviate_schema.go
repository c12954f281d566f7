package searchindex

import (
	"context"
	"fmt"
	"time"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// BootstrapWeaviate ensures the ProfileVector class exists. Vectors are
// supplied by the embedding provider, so the class carries no vectorizer.
func BootstrapWeaviate(ctx context.Context, baseURL string) error {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cls := &models.Class{
		Class:      profileClass,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "userId", DataType: []string{"text"}},
			{Name: "channel", DataType: []string{"text"}},
			{Name: "city", DataType: []string{"text"}},
			{Name: "communities", DataType: []string{"text[]"}},
			{Name: "currentEventId", DataType: []string{"text"}},
		},
	}

	if err := ensureClass(cctx, cl, cls); err != nil {
		return fmt.Errorf("bootstrap %s: %w", profileClass, err)
	}
	return nil
}

func ensureClass(ctx context.Context, cl *weaviate.Client, desired *models.Class) error {
	ex, err := cl.Schema().ClassGetter().WithClassName(desired.Class).Do(ctx)
	if err == nil && ex != nil {
		return nil
	}
	if err := cl.Schema().ClassCreator().WithClass(desired).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", desired.Class, err)
	}
	return nil
}

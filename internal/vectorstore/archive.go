package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/fault"
)

// metaDocID is the sentinel document carrying the collection's model id.
const metaDocID = "__corpusd_meta__"

// Entry is one archived vector with its element back-reference.
type Entry struct {
	// ID is the element identifier the vector belongs to.
	ID string

	// Content is the embedded text, kept for re-ranking and diagnostics.
	Content string

	// Embedding is the vector itself.
	Embedding []float32
}

// Config configures the archive.
type Config struct {
	// Path is the persistence directory. Empty means in-memory (tests).
	Path string

	// Compress enables gzip on persisted collections.
	Compress bool

	// Model is the embedding model id stamped onto every collection.
	Model string

	// Dim is the embedding dimension all collections share.
	Dim int
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Model == "" {
		return fault.Invalid("archive model id is required")
	}
	if c.Dim <= 0 {
		return fault.Invalid("archive dimension must be positive, got %d", c.Dim)
	}
	return nil
}

// Archive stores embeddings per corpus collection, stamped with the model id.
type Archive struct {
	db     *chromem.DB
	cfg    Config
	logger *zap.Logger
}

// New opens (or creates) the archive.
func New(cfg Config, logger *zap.Logger) (*Archive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		path, pathErr := expandPath(cfg.Path)
		if pathErr != nil {
			return nil, fault.Invalid("archive path: %v", pathErr)
		}
		if mkErr := os.MkdirAll(path, 0o700); mkErr != nil {
			return nil, fault.Unavailable(mkErr, "creating archive directory %s", path)
		}
		db, err = chromem.NewPersistentDB(path, cfg.Compress)
		if err != nil {
			return nil, fault.Unavailable(err, "opening archive at %s", path)
		}
	}

	return &Archive{db: db, cfg: cfg, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func collectionName(corpus string) string {
	return "corpus_" + strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, corpus)
}

// Model returns the archive's model id.
func (a *Archive) Model() string { return a.cfg.Model }

// Put stores entries for one corpus, creating the collection when needed.
// A collection written by a different embedding model is dropped first,
// since its vectors are not comparable.
func (a *Archive) Put(ctx context.Context, corpus string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	col, err := a.openCollection(ctx, corpus)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" || len(e.Embedding) != a.cfg.Dim {
			return fault.Invalid("archive entry needs id and a %d-dimensional embedding", a.cfg.Dim)
		}
		docs = append(docs, chromem.Document{
			ID:        e.ID,
			Content:   e.Content,
			Embedding: e.Embedding,
			Metadata:  map[string]string{"element_id": e.ID},
		})
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return fault.Unavailable(err, "archiving %d vectors for corpus %s", len(entries), corpus)
	}
	return nil
}

// Load returns every archived entry of one corpus. A missing collection
// yields an empty slice; a stale collection (different model) is dropped and
// reported NotFound so the caller re-embeds.
func (a *Archive) Load(ctx context.Context, corpus string) ([]Entry, error) {
	col := a.db.GetCollection(collectionName(corpus), nil)
	if col == nil {
		return nil, nil
	}
	if err := a.checkModel(ctx, corpus, col); err != nil {
		return nil, err
	}

	count := col.Count()
	if count <= 1 {
		return nil, nil
	}

	// chromem retrieves by similarity; a fixed probe with nResults = count
	// enumerates the collection.
	res, err := col.QueryEmbedding(ctx, probeVector(a.cfg.Dim), count, nil, nil)
	if err != nil {
		return nil, fault.Unavailable(err, "loading archive for corpus %s", corpus)
	}

	entries := make([]Entry, 0, len(res))
	for _, r := range res {
		if r.ID == metaDocID {
			continue
		}
		entries = append(entries, Entry{ID: r.ID, Content: r.Content, Embedding: r.Embedding})
	}
	return entries, nil
}

// Drop removes one corpus collection.
func (a *Archive) Drop(_ context.Context, corpus string) error {
	if err := a.db.DeleteCollection(collectionName(corpus)); err != nil {
		return fault.Unavailable(err, "dropping archive collection for corpus %s", corpus)
	}
	return nil
}

func (a *Archive) openCollection(ctx context.Context, corpus string) (*chromem.Collection, error) {
	name := collectionName(corpus)
	if col := a.db.GetCollection(name, nil); col != nil {
		if err := a.checkModel(ctx, corpus, col); err == nil {
			return col, nil
		} else if fault.CodeOf(err) != fault.CodeNotFound {
			return nil, err
		}
		// Stale collection was dropped; fall through and recreate.
	}

	col, err := a.db.GetOrCreateCollection(name, map[string]string{"embedding_model": a.cfg.Model}, nil)
	if err != nil {
		return nil, fault.Unavailable(err, "creating archive collection for corpus %s", corpus)
	}
	// Sentinel document records the model for stores that drop collection
	// metadata on reload.
	err = col.AddDocuments(ctx, []chromem.Document{{
		ID:        metaDocID,
		Content:   a.cfg.Model,
		Embedding: probeVector(a.cfg.Dim),
		Metadata:  map[string]string{"embedding_model": a.cfg.Model},
	}}, 1)
	if err != nil {
		return nil, fault.Unavailable(err, "stamping archive collection for corpus %s", corpus)
	}
	return col, nil
}

// checkModel invalidates collections written by a different embedding model.
func (a *Archive) checkModel(ctx context.Context, corpus string, col *chromem.Collection) error {
	meta, err := col.GetByID(ctx, metaDocID)
	if err != nil {
		// No stamp: legacy or foreign collection, treat as stale.
		return a.invalidate(ctx, corpus, "unstamped")
	}
	if meta.Content != a.cfg.Model {
		return a.invalidate(ctx, corpus, meta.Content)
	}
	return nil
}

func (a *Archive) invalidate(ctx context.Context, corpus, previous string) error {
	a.logger.Warn("archive collection invalidated by model change",
		zap.String("corpus", corpus),
		zap.String("previous_model", previous),
		zap.String("current_model", a.cfg.Model),
	)
	if err := a.Drop(ctx, corpus); err != nil {
		return err
	}
	return fault.NotFound("archive for corpus %s was built with model %s", corpus, previous)
}

func probeVector(dim int) []float32 {
	q := make([]float32, dim)
	q[0] = 1
	return q
}

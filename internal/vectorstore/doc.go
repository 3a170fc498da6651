// Package vectorstore stores embedded text chunks and searches them by
// similarity.
//
// Two implementations share the Store interface:
//
//   - ChromemStore: embedded chromem-go database persisted under a local
//     directory (or kept in memory), the default.
//   - QdrantStore: a remote Qdrant instance over gRPC.
//
// Each Store is bound to one collection. Vectors are produced by an
// Embedder supplied at construction; the store never embeds text itself.
//
// Usage:
//
//	store, err := vectorstore.NewStore(ctx, cfg.VectorStore, client, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	_, err = store.AddDocuments(ctx, []vectorstore.Document{{ID: "intro_0", Content: text}})
//	results, err := store.Search(ctx, "What is Agno?", 5)
package vectorstore

// Package services – KnowledgeService
//
// Thin wrapper around the knowledge-table file embedding used by the staff
// upload path. Unlike the chat flow this surface does return errors: the
// uploader is staff tooling and wants to know when an ingest failed.
package services

import (
	"context"
	"strings"
)

// KnowledgeTable is the slice of the hosted table client ingestion needs.
type KnowledgeTable interface {
	EmbedFile(ctx context.Context, tableID, filePath string) error
}

// KnowledgeService ingests reference documents into the knowledge table.
type KnowledgeService struct {
	Table   KnowledgeTable
	TableID string
}

// NewKnowledgeService constructs a KnowledgeService for one knowledge table.
func NewKnowledgeService(table KnowledgeTable, tableID string) *KnowledgeService {
	return &KnowledgeService{Table: table, TableID: tableID}
}

// EmbedFile uploads the file at path for embedding.
func (s *KnowledgeService) EmbedFile(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrEmptyFilePath
	}
	return s.Table.EmbedFile(ctx, s.TableID, path)
}

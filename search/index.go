// Package search maintains a full-text index over sent messages and
// answers per-room queries.
package search

import (
	"blimp/domain"
	"context"
	"log/slog"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
}

// Open creates or reopens the index at path.
func Open(path string, log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &Index{writer: writer, log: log}, nil
}

func (i *Index) Close() error {
	return i.writer.Close()
}

// Index upserts one message. Messages are immutable, so reindexing the
// same id is only ever a redelivery, never a content change.
func (i *Index) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField("room_id", message.RoomID.String()).StoreValue()).
		AddField(bluge.NewKeywordField("author", message.AuthorName).StoreValue()).
		AddField(bluge.NewTextField("content", message.Content).StoreValue()).
		AddField(bluge.NewDateTimeField("created_at", message.CreatedAt))
	return i.writer.Update(doc.ID(), doc)
}

// Hit is one search result.
type Hit struct {
	MessageID string  `json:"message_id"`
	Author    string  `json:"author"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}

// Search returns the best matches for terms within one room.
func (i *Index) Search(ctx context.Context, roomID uuid.UUID, terms string, limit int) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(roomID.String()).SetField("room_id")).
		AddMust(bluge.NewMatchQuery(terms).SetField("content"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var hits []Hit
	match, err := iterator.Next()
	for err == nil && match != nil {
		hit := Hit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "author":
				hit.Author = string(value)
			case "content":
				hit.Content = string(value)
			}
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		hits = append(hits, hit)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}

// DeleteRoom purges every indexed message of the room, completing the
// cascade of a room deletion.
func (i *Index) DeleteRoom(roomID uuid.UUID) error {
	reader, err := i.writer.Reader()
	if err != nil {
		return err
	}
	defer reader.Close()

	query := bluge.NewTermQuery(roomID.String()).SetField("room_id")
	iterator, err := reader.Search(context.Background(), bluge.NewAllMatches(query))
	if err != nil {
		return err
	}

	var ids []string
	match, err := iterator.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				ids = append(ids, string(value))
			}
			return true
		})
		if visitErr != nil {
			return visitErr
		}
		match, err = iterator.Next()
	}
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := i.writer.Delete(bluge.Identifier(id)); err != nil {
			return err
		}
	}
	i.log.Debug("room purged from search index", "room_id", roomID, "documents", len(ids))
	return nil
}

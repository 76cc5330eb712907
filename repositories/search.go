package repositories

import (
	"context"

	"market-chat/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

// SearchIndex wraps a Bluge writer with the message schema: the content
// field is analyzed text, the participant field is stored twice (sender and
// receiver) so a single term query restricts results to the caller's own
// conversations.
type SearchIndex struct {
	writer *bluge.Writer
}

func NewSearchIndex(writer *bluge.Writer) *SearchIndex {
	return &SearchIndex{writer: writer}
}

// OpenSearchIndex opens (or creates) the index at path.
func OpenSearchIndex(path string) (*SearchIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &SearchIndex{writer: writer}, nil
}

func (s *SearchIndex) Close() error {
	return s.writer.Close()
}

// Index upserts one message. Masked content is indexed as stored, so blocked
// terms are not searchable either.
func (s *SearchIndex) Index(msg domain.ChatMessage) error {
	doc := bluge.NewDocument(msg.ID.String())
	doc.AddField(bluge.NewTextField("content", msg.Content))
	doc.AddField(bluge.NewKeywordField("participant", msg.SenderID))
	doc.AddField(bluge.NewKeywordField("participant", msg.ReceiverID))
	return s.writer.Update(doc.ID(), doc)
}

// Search returns ids of the userID's messages matching the query, best first.
func (s *SearchIndex) Search(ctx context.Context, userID, query string, limit int) ([]uuid.UUID, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField("content")).
		AddMust(bluge.NewTermQuery(userID).SetField("participant"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					ids = append(ids, id)
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/dealerscan/ingest-be/internal/ledger"
)

// DecodeJobCursor parses a base64 "created_at_nanos|job_id" cursor. An empty
// cursor string means the first page.
func DecodeJobCursor(cursorStr string) (*ledger.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &ledger.Cursor{
		CreatedAt: time.Unix(0, createdAt),
		JobID:     parts[1],
	}, nil
}

// EncodeJobCursor serializes a cursor for the next-page token
func EncodeJobCursor(cursor *ledger.Cursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.CreatedAt.UnixNano(), cursor.JobID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}

package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// Cursor is the resume position carried between feed pages.
type Cursor struct {
	QueryIndex int
	PostIndex  int
	BatchID    string
}

// String encodes c in its three-part wire form.
func (c Cursor) String() string {
	return fmt.Sprintf("%d:%d:%s", c.QueryIndex, c.PostIndex, c.BatchID)
}

// DecodeCursor parses "<q>:<p>" or "<q>:<p>:<batchId>". The two-part form
// resolves to defaultBatch. An empty token yields the start of defaultBatch.
// On ErrMalformedCursor the returned cursor is also the start of defaultBatch.
func DecodeCursor(token, defaultBatch string) (Cursor, error) {
	start := Cursor{BatchID: defaultBatch}
	if token == "" {
		return start, nil
	}

	parts := strings.Split(token, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return start, fmt.Errorf("%w: %q", ErrMalformedCursor, token)
	}

	q, err := strconv.Atoi(parts[0])
	if err != nil || q < 0 {
		return start, fmt.Errorf("%w: query index %q", ErrMalformedCursor, parts[0])
	}
	p, err := strconv.Atoi(parts[1])
	if err != nil || p < 0 {
		return start, fmt.Errorf("%w: post index %q", ErrMalformedCursor, parts[1])
	}

	c := Cursor{QueryIndex: q, PostIndex: p, BatchID: defaultBatch}
	if len(parts) == 3 {
		if !ValidBatchID(parts[2]) {
			return start, fmt.Errorf("%w: batch id %q", ErrMalformedCursor, parts[2])
		}
		c.BatchID = parts[2]
	}
	return c, nil
}

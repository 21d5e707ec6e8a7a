package bsky

import (
	"context"
	"fmt"
	"time"

	appbsky "github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
)

const (
	FeedGeneratorCollection = "app.bsky.feed.generator"

	// TimestampFormat is the millisecond-precision UTC form records use.
	TimestampFormat = "2006-01-02T15:04:05.000Z"
)

// FeedGeneratorRecord is an app.bsky.feed.generator record.
type FeedGeneratorRecord struct {
	Type        string `json:"$type"`
	DID         string `json:"did"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// NewFeedGeneratorRecord builds the record announcing serviceDID as the feed's host.
func NewFeedGeneratorRecord(serviceDID, displayName, description string, now time.Time) FeedGeneratorRecord {
	return FeedGeneratorRecord{
		Type:        FeedGeneratorCollection,
		DID:         serviceDID,
		DisplayName: displayName,
		Description: description,
		CreatedAt:   now.UTC().Format(TimestampFormat),
	}
}

// PutFeedGenerator publishes rec under rkey in the logged-in account's repo.
func (c *Client) PutFeedGenerator(ctx context.Context, rkey string, rec FeedGeneratorRecord) (*RecordRef, error) {
	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}
	return c.putRecord(ctx, FeedGeneratorCollection, rkey, &lexutil.LexiconTypeDecoder{Val: rec.lexicon()})
}

// lexicon converts rec to the generated app.bsky.feed.generator type.
func (rec FeedGeneratorRecord) lexicon() *appbsky.FeedGenerator {
	out := &appbsky.FeedGenerator{
		LexiconTypeID: FeedGeneratorCollection,
		Did:           rec.DID,
		DisplayName:   rec.DisplayName,
		CreatedAt:     rec.CreatedAt,
	}
	if rec.Description != "" {
		desc := rec.Description
		out.Description = &desc
	}
	return out
}

// FeedURI is the at:// URI clients pass as the feed parameter.
func FeedURI(publisherDID, recordName string) string {
	return fmt.Sprintf("at://%s/%s/%s", publisherDID, FeedGeneratorCollection, recordName)
}

// FeedDescription is one entry of describeFeedGenerator.
type FeedDescription struct {
	URI         string `json:"uri"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
}

// DescribeFeedGeneratorOutput is the app.bsky.feed.describeFeedGenerator body.
type DescribeFeedGeneratorOutput struct {
	DID   string            `json:"did"`
	Feeds []FeedDescription `json:"feeds"`
}

// DIDDocument is the did:web document served at /.well-known/did.json.
type DIDDocument struct {
	Context []string     `json:"@context"`
	ID      string       `json:"id"`
	Service []DIDService `json:"service"`
}

// DIDService is a service entry of a DID document.
type DIDService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// NewDIDDocument returns the document advertising the feed generator endpoint.
func NewDIDDocument(serviceDID, hostname string) DIDDocument {
	return DIDDocument{
		Context: []string{"https://www.w3.org/ns/did/v1"},
		ID:      serviceDID,
		Service: []DIDService{{
			ID:              "#bsky_fg",
			Type:            "BskyFeedGenerator",
			ServiceEndpoint: "https://" + hostname,
		}},
	}
}

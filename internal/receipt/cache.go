package receipt

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const responseBucket = "responses"

// CachedResponse is a raw model response kept for diagnostics, so a parse
// failure can be investigated after the run without re-calling the model.
type CachedResponse struct {
	Raw        string    `json:"raw"`
	Model      string    `json:"model"`
	CapturedAt time.Time `json:"captured_at"`
}

// ResponseCache stores the latest raw model response per image path
type ResponseCache struct {
	db *bbolt.DB
}

// NewResponseCache opens (or creates) the cache file
func NewResponseCache(path string) (*ResponseCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening response cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(responseBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating response bucket: %w", err)
	}

	return &ResponseCache{db: db}, nil
}

// Put records the raw response for an image, replacing any previous one
func (c *ResponseCache) Put(imagePath string, response CachedResponse) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(responseBucket))
		data, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshaling response: %w", err)
		}
		return bucket.Put([]byte(imagePath), data)
	})
}

// Get retrieves the cached response for an image path
func (c *ResponseCache) Get(imagePath string) (*CachedResponse, error) {
	var response *CachedResponse
	err := c.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(responseBucket))
		data := bucket.Get([]byte(imagePath))
		if data == nil {
			return fmt.Errorf("no cached response for %s", imagePath)
		}
		return json.Unmarshal(data, &response)
	})
	if err != nil {
		return nil, err
	}
	return response, nil
}

// Close closes the cache file
func (c *ResponseCache) Close() error {
	return c.db.Close()
}

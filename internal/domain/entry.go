package domain

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EntryKind string

const (
	EntryKindText  EntryKind = "text"
	EntryKindCode  EntryKind = "code"
	EntryKindImage EntryKind = "image"
)

func (k EntryKind) Valid() bool {
	switch k {
	case EntryKindText, EntryKindCode, EntryKindImage:
		return true
	}
	return false
}

// LinkEdge is one element of an entry's links list. Score is nil for
// contradiction edges and for edges whose confidence was never computed.
type LinkEdge struct {
	TargetID        uuid.UUID `json:"target_id"`
	Reason          string    `json:"reason"`
	Score           *float64  `json:"score,omitempty"`
	IsContradiction bool      `json:"is_contradiction,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type Entry struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`

	Title string    `gorm:"not null" json:"title"`
	Body  string    `gorm:"type:text" json:"body"`
	Kind  EntryKind `gorm:"not null;default:text" json:"kind"`

	Tags      datatypes.JSON `gorm:"type:jsonb" json:"tags"`
	Embedding datatypes.JSON `gorm:"type:jsonb" json:"-"`
	Links     datatypes.JSON `gorm:"type:jsonb" json:"links"`

	// LinkVersion guards concurrent rewrites of Links. Updates must match
	// the version they loaded and bump it by one.
	LinkVersion int `gorm:"not null;default:0" json:"link_version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Entry) TableName() string { return "entry" }

func (e *Entry) TagList() []string {
	if len(e.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(e.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

func (e *Entry) SetTags(tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	e.Tags = datatypes.JSON(raw)
	return nil
}

// EmbeddingVector returns nil when the entry has no stored embedding.
func (e *Entry) EmbeddingVector() []float32 {
	if len(e.Embedding) == 0 {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal(e.Embedding, &vec); err != nil {
		return nil
	}
	if len(vec) == 0 {
		return nil
	}
	return vec
}

func (e *Entry) SetEmbedding(vec []float32) error {
	if vec == nil {
		e.Embedding = nil
		return nil
	}
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	e.Embedding = datatypes.JSON(raw)
	return nil
}

func (e *Entry) LinkEdges() []LinkEdge {
	if len(e.Links) == 0 {
		return nil
	}
	var edges []LinkEdge
	if err := json.Unmarshal(e.Links, &edges); err != nil {
		return nil
	}
	return edges
}

func (e *Entry) SetLinkEdges(edges []LinkEdge) error {
	if edges == nil {
		edges = []LinkEdge{}
	}
	raw, err := json.Marshal(edges)
	if err != nil {
		return err
	}
	e.Links = datatypes.JSON(raw)
	return nil
}

func (e *Entry) HasEdgeTo(target uuid.UUID) bool {
	for _, edge := range e.LinkEdges() {
		if edge.TargetID == target {
			return true
		}
	}
	return false
}

// LinkCount counts similarity edges only; contradiction edges do not
// consume link capacity.
func (e *Entry) LinkCount() int {
	n := 0
	for _, edge := range e.LinkEdges() {
		if !edge.IsContradiction {
			n++
		}
	}
	return n
}

// BodyExcerpt returns the body truncated to at most budget bytes, backing
// up so a multi-byte rune is never split. budget <= 0 means no limit.
func (e *Entry) BodyExcerpt(budget int) string {
	body := e.Body
	if budget <= 0 || len(body) <= budget {
		return body
	}
	cut := budget
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}

// JudgeText is the condensed representation handed to the embedding
// provider and the judge prompts.
func (e *Entry) JudgeText(bodyBudget int) string {
	body := e.BodyExcerpt(bodyBudget)
	if e.Title == "" {
		return body
	}
	if body == "" {
		return e.Title
	}
	return e.Title + "\n" + body
}

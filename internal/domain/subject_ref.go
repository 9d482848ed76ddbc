package domain

import (
	"encoding/json"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SubjectRef is the boundary representation of a subject reference. Upstream
// payloads carry subjects in three shapes: a raw hex object id, a document
// with an _id field, or a bare subject code. It is resolved once into a
// canonical subject id; nothing downstream branches on the shape again.
type SubjectRef struct {
	ID   string
	Code string
}

var ErrBadSubjectRef = errors.New("unrecognized subject reference")

func (r *SubjectRef) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*r = SubjectRef{}
			return nil
		}
		if _, err := primitive.ObjectIDFromHex(raw); err == nil {
			*r = SubjectRef{ID: raw}
		} else {
			*r = SubjectRef{Code: raw}
		}
		return nil
	}

	var doc struct {
		ID   string `json:"_id"`
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ErrBadSubjectRef
	}
	if doc.ID == "" && doc.Code == "" {
		return ErrBadSubjectRef
	}
	*r = SubjectRef{ID: doc.ID, Code: doc.Code}
	return nil
}

func (r SubjectRef) IsZero() bool {
	return r.ID == "" && r.Code == ""
}

// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package database

import (
	"encoding/binary"
	"math"
	"time"
)

// KiokuMemory is the relational row for a memory record. Emotions are
// stored as a JSON array and the embedding as a little-endian float32 blob.
type KiokuMemory struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Summary      string    `gorm:"type:text;not null" json:"summary"`
	Emotions     []string  `gorm:"serializer:json;not null" json:"emotions"`
	OriginalUser string    `gorm:"type:text;not null" json:"original_user"`
	OriginalAI   string    `gorm:"type:text;not null" json:"original_ai"`
	Embedding    []byte    `gorm:"not null" json:"-"`
	Dimensions   int       `gorm:"not null" json:"dimensions"`
	UserID       string    `gorm:"index;size:255" json:"user_id"`
	SessionID    string    `gorm:"size:255" json:"session_id"`
	AppName      string    `gorm:"size:255" json:"app_name"`
	CreatedAt    time.Time `gorm:"index;not null" json:"created_at"`
}

// TableName specifies the table name for KiokuMemory
func (KiokuMemory) TableName() string {
	return "kioku_memories"
}

// Float32SliceToBlob converts a float32 slice to little-endian bytes
func Float32SliceToBlob(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BlobToFloat32Slice converts little-endian bytes back to a float32 slice.
// It returns nil when the length is not a multiple of four.
func BlobToFloat32Slice(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

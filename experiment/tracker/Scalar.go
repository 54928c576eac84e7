package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Scalar tracks a named scalar series, one value per call to Track,
// and saves the series to disk with gob. It is the sink for
// per-iteration training metrics such as losses.
type Scalar struct {
	filename string
	data     []float64
}

// NewScalar returns a new Scalar Tracker which saves its series to
// filename
func NewScalar(filename string) *Scalar {
	return &Scalar{filename: filename}
}

// Track appends value to the tracked series
func (s *Scalar) Track(value float64) {
	s.data = append(s.data, value)
}

// Data returns the series tracked so far
func (s *Scalar) Data() []float64 {
	return s.data
}

// Save saves the tracked series to disk
func (s *Scalar) Save() error {
	file, err := os.Create(s.filename)
	if err != nil {
		return fmt.Errorf("save: could not create save file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err := en.Encode(s.data); err != nil {
		return fmt.Errorf("save: could not encode data: %v", err)
	}
	return nil
}

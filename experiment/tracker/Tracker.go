// Package tracker implements Trackers, which record scalar training
// data and save it to disk
package tracker

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Tracker caches a series of scalar experiment data in RAM and saves
// the series to disk once the experiment has finished
type Tracker interface {
	Track(value float64)
	Save() error
}

// LoadData loads and returns the data saved by a Tracker
func LoadData(filename string) ([]float64, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("loaddata: could not open data file: %v", err)
	}
	defer file.Close()

	dec := gob.NewDecoder(file)
	var data []float64
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("loaddata: could not decode data: %v", err)
	}

	return data, nil
}

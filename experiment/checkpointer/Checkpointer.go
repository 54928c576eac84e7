// Package checkpointer implements periodic saving of serializable
// objects during an experiment
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
)

// Serializable is an object that can be saved with gob
type Serializable interface {
	gob.GobEncoder
}

// Checkpointer saves serializable objects at chosen training
// iterations
type Checkpointer interface {
	Checkpoint(iteration int) error
}

// Save writes the gob encoding of object to filename
func Save(object Serializable, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("save: could not create checkpoint file: %v", err)
	}
	defer file.Close()

	en := gob.NewEncoder(file)
	if err := en.Encode(object); err != nil {
		return fmt.Errorf("save: could not encode object: %v", err)
	}
	return nil
}

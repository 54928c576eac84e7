package checkpointer

import "fmt"

// nStep implements checkpointing every N training iterations
type nStep struct {
	interval int
	object   Serializable

	// filename returns the name of the file to save the object in.
	//
	// If each checkpoint should go to a separate file with an
	// incremented number as a suffix (e.g. file1.bin, file2.bin, ...,
	// fileK.bin), use FilenameEnumerator to generate the naming
	// function. If each checkpoint should go to a separate file but
	// the exact name does not matter, use FileTimer instead. For
	// example:
	//
	// n := NewNStep(10, object, FileTimer("filename", ".bin"))
	filename func() string
}

// NewNStep returns a Checkpointer that saves object every n
// iterations
func NewNStep(n int, object Serializable,
	filename func() string) (Checkpointer, error) {
	if n <= 0 {
		return nil, fmt.Errorf("newnstep: interval must be positive "+
			"\n\thave(%v)", n)
	}
	if object == nil {
		return nil, fmt.Errorf("newnstep: cannot checkpoint a nil object")
	}

	return &nStep{
		interval: n,
		object:   object,
		filename: filename,
	}, nil
}

// Checkpoint saves the tracked object if the iteration falls on the
// checkpointing interval
func (n *nStep) Checkpoint(iteration int) error {
	if iteration%n.interval == 0 {
		return Save(n.object, n.filename())
	}
	return nil
}

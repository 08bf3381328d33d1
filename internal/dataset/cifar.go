package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CIFAR-10 binary layout: one label byte followed by 32×32 red, green and blue planes.
const (
	CIFARSide    = 32
	CIFARClasses = 10

	cifarPlane  = CIFARSide * CIFARSide
	cifarRecord = 1 + 3*cifarPlane
)

var (
	cifarTrainFiles = []string{
		"data_batch_1.bin",
		"data_batch_2.bin",
		"data_batch_3.bin",
		"data_batch_4.bin",
		"data_batch_5.bin",
	}
	cifarTestFiles = []string{"test_batch.bin"}
)

// LoadCIFAR10 reads the training (50,000) or test (10,000) partition from dir.
// dir may be the extracted cifar-10-batches-bin directory or its parent.
// Images are converted to grayscale.
func LoadCIFAR10(dir string, train bool) (*Set, error) {
	files := cifarTestFiles
	if train {
		files = cifarTrainFiles
	}
	if _, err := os.Stat(filepath.Join(dir, files[0])); errors.Is(err, os.ErrNotExist) {
		dir = filepath.Join(dir, "cifar-10-batches-bin")
	}

	set := &Set{}
	for _, name := range files {
		path := filepath.Join(dir, name)
		if err := readCIFARFile(path, set); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func readCIFARFile(path string, set *Set) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open cifar batch: %w", err)
	}
	defer f.Close()

	n, err := ReadCIFARRecords(bufio.NewReader(f), set)
	if err != nil {
		return fmt.Errorf("%s: record %d: %w", filepath.Base(path), n, err)
	}
	return nil
}

// ReadCIFARRecords appends every record in r to set and returns the number read.
func ReadCIFARRecords(r io.Reader, set *Set) (int, error) {
	buf := make([]byte, cifarRecord)
	n := 0
	for {
		_, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return n, errors.New("truncated record")
		}
		if err != nil {
			return n, err
		}
		label := int(buf[0])
		if label >= CIFARClasses {
			return n, fmt.Errorf("label %d out of range", label)
		}
		red := buf[1 : 1+cifarPlane]
		green := buf[1+cifarPlane : 1+2*cifarPlane]
		blue := buf[1+2*cifarPlane:]
		pixels := make([]float64, cifarPlane)
		for i := range pixels {
			pixels[i] = float64(Luma(red[i], green[i], blue[i])) / 255
		}
		set.Append(Sample{Key: fmt.Sprintf("%06d", n), Pixels: pixels, Label: label})
		n++
	}
}

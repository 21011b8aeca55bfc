package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadFilelist parses a filelist: one entry per line, fields separated by '|',
// the first field being the audio path. Blank lines are skipped.
func ReadFilelist(r io.Reader) ([]string, error) {
	var files []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if len(line) == 0 {
			continue
		}
		path, _, _ := strings.Cut(line, "|")
		files = append(files, path)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// LoadFilelist reads the filelist at path.
func LoadFilelist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	files, err := ReadFilelist(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return files, nil
}

// LoadFilelists reads the training and validation filelists.
func LoadFilelists(train, val string) (training, validation []string, err error) {
	if training, err = LoadFilelist(train); err != nil {
		return nil, nil, err
	}
	if validation, err = LoadFilelist(val); err != nil {
		return nil, nil, err
	}
	return training, validation, nil
}

package tagdef

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/berfenger/speedwire2mqtt/internal/core/port"

	"go.uber.org/zap"
)

// Record is one line of a tag definition file: id=tagname\registerid\description.
type Record struct {
	ID          uint32
	Name        string
	RegisterID  uint32
	Description string
}

type Definitions struct {
	records map[uint32]Record
}

func Load(path string, logger *zap.Logger) (*Definitions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tagdef: %w", err)
	}
	defer f.Close()
	return Parse(f, logger)
}

// Parse reads tag definitions, skipping comments and malformed lines.
func Parse(r io.Reader, logger *zap.Logger) (*Definitions, error) {
	d := &Definitions{records: map[uint32]Record{}}
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if i := strings.IndexAny(line, "#\r"); i >= 0 {
			line = line[:i]
		}
		if line == "" {
			continue
		}
		record, ok := parseLine(line)
		if !ok {
			logger.Warn("tagdef: malformed line", zap.Int("line", lineNumber), zap.String("text", line))
			continue
		}
		d.records[record.ID] = record
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("tagdef: %w", err)
	}
	return d, nil
}

func parseLine(line string) (Record, bool) {
	id, desc, found := strings.Cut(line, "=")
	if !found {
		return Record{}, false
	}
	parts := strings.Split(desc, `\`)
	if len(parts) != 3 {
		return Record{}, false
	}
	tagID, err := strconv.ParseUint(strings.TrimSpace(id), 10, 32)
	if err != nil {
		return Record{}, false
	}
	registerID, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil {
		return Record{}, false
	}
	return Record{
		ID:          uint32(tagID),
		Name:        parts[0],
		RegisterID:  uint32(registerID),
		Description: parts[2],
	}, true
}

func (d *Definitions) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// TagName resolves status value tags, the records without register id.
func (d *Definitions) TagName(tag uint32) (string, bool) {
	if d == nil {
		return "", false
	}
	r, ok := d.records[tag]
	if !ok || r.RegisterID != 0 {
		return "", false
	}
	return r.Name, true
}

// Registers returns the records naming a register, ordered by tag id.
func (d *Definitions) Registers() []Record {
	if d == nil {
		return nil
	}
	var records []Record
	for _, r := range d.records {
		if r.RegisterID != 0 {
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records
}

// ensure interface compliance
var _ port.TagResolver = (*Definitions)(nil)

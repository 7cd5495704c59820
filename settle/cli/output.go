package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/settlewatch/settle/filesystem/watcher"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// record is the serialised form of any watcher event
type record struct {
	Event   string         `json:"event" yaml:"event"`
	Path    string         `json:"path,omitempty" yaml:"path,omitempty"`
	OldPath string         `json:"old_path,omitempty" yaml:"old_path,omitempty"`
	Kind    string         `json:"kind,omitempty" yaml:"kind,omitempty"`
	BatchID string         `json:"batch_id,omitempty" yaml:"batch_id,omitempty"`
	Changes []changeRecord `json:"changes,omitempty" yaml:"changes,omitempty"`
	Time    time.Time      `json:"time" yaml:"time"`
}

type changeRecord struct {
	Path string `json:"path" yaml:"path"`
	Kind string `json:"kind" yaml:"kind"`
}

// printer writes one record per event. Event kinds are delivered on separate
// goroutines, so writes are serialised here.
type printer struct {
	mu     sync.Mutex
	out    io.Writer
	format string
}

func newPrinter(out io.Writer, format string) (*printer, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatJSON, FormatYAML:
	default:
		return nil, fmt.Errorf("unsupported output format %q (want text, json or yaml)", format)
	}
	return &printer{out: out, format: format}, nil
}

func (p *printer) settled(change watcher.SettledChange) {
	p.write(record{
		Event: watcher.EventFileFinishedChanging,
		Path:  change.Path,
		Kind:  change.Kind.String(),
		Time:  change.SettledAt,
	})
}

func (p *printer) batch(batch watcher.Batch) {
	changes := make([]changeRecord, 0, batch.Len())
	for _, change := range batch.Changes {
		changes = append(changes, changeRecord{Path: change.Path, Kind: change.Kind.String()})
	}
	p.write(record{
		Event:   watcher.EventFilesFinishedChanging,
		BatchID: batch.ID.String(),
		Changes: changes,
		Time:    batch.FinishedAt,
	})
}

func (p *printer) activity(activity watcher.ActivityFinished) {
	p.write(record{
		Event:   watcher.EventActivityFinished,
		BatchID: activity.Batch.ID.String(),
		Time:    activity.Batch.FinishedAt,
	})
}

func (p *printer) raw(name string) func(watcher.PathEvent) {
	return func(event watcher.PathEvent) {
		p.write(record{
			Event:   name,
			Path:    event.Path,
			OldPath: event.OldPath,
			Time:    event.OccurredAt,
		})
	}
}

func (p *printer) write(r record) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.format {
	case FormatJSON:
		data, err := json.Marshal(r)
		if err != nil {
			return
		}
		fmt.Fprintln(p.out, string(data))
	case FormatYAML:
		data, err := yaml.Marshal(r)
		if err != nil {
			return
		}
		fmt.Fprintf(p.out, "---\n%s", data)
	default:
		fmt.Fprintln(p.out, formatText(r))
	}
}

func formatText(r record) string {
	ts := r.Time.Format("15:04:05.000")
	switch r.Event {
	case watcher.EventFileFinishedChanging:
		return fmt.Sprintf("%s  %-16s %s", ts, r.Kind, r.Path)
	case watcher.EventFilesFinishedChanging:
		return fmt.Sprintf("%s  batch %s settled %d file(s)", ts, r.BatchID, len(r.Changes))
	case watcher.EventActivityFinished:
		return fmt.Sprintf("%s  idle", ts)
	default:
		if r.OldPath != "" && r.Path != r.OldPath {
			return fmt.Sprintf("%s  %-16s %s -> %s", ts, r.Event, r.OldPath, r.Path)
		}
		return fmt.Sprintf("%s  %-16s %s", ts, r.Event, r.Path)
	}
}

// subscribe wires the printer to every event kind it should report
func (p *printer) subscribe(events *watcher.Events, includeRaw bool) {
	events.FileFinishedChanging.Subscribe(p.settled)
	events.FilesFinishedChanging.Subscribe(p.batch)
	events.ActivityFinished.Subscribe(p.activity)

	if !includeRaw {
		return
	}
	events.FileCreated.Subscribe(p.raw(watcher.EventFileCreated))
	events.FileChanged.Subscribe(p.raw(watcher.EventFileChanged))
	events.FileDeleted.Subscribe(p.raw(watcher.EventFileDeleted))
	events.FileRenamed.Subscribe(p.raw(watcher.EventFileRenamed))
	events.DirectoryCreated.Subscribe(p.raw(watcher.EventDirectoryCreated))
	events.DirectoryDeleted.Subscribe(p.raw(watcher.EventDirectoryDeleted))
	events.DirectoryRenamed.Subscribe(p.raw(watcher.EventDirectoryRenamed))
}

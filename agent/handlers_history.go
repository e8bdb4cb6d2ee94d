package agent

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"evalgo.org/deployhub/internal/storage"
)

// LogFile describes one file of the agent log directory.
type LogFile struct {
	Filename  string    `json:"filename"`
	Filesize  int64     `json:"filesize"`
	LineCount int       `json:"line_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Agent) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	ok(w, nil, a.ledger.List())
}

func (a *Agent) handleHistoryByProject(w http.ResponseWriter, r *http.Request) {
	ok(w, nil, a.ledger.ListByProject(mux.Vars(r)["id"]))
}

func (a *Agent) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, found := a.ledger.Get(id); !found {
		a.writeError(w, r, fmt.Errorf("%w: deploy history %s", storage.ErrNotFound, id))
		return
	}
	if err := a.ledger.Delete(id); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok(w, "deploy history deleted", nil)
}

func (a *Agent) handleLogList(w http.ResponseWriter, r *http.Request) {
	files, err := listLogFiles(a.cfg.Logging.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fail(w, http.StatusNotFound, "log directory does not exist")
			return
		}
		a.writeError(w, r, err)
		return
	}
	ok(w, nil, files)
}

func (a *Agent) handleLogContent(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		fail(w, http.StatusBadRequest, "invalid log file name")
		return
	}

	data, err := os.ReadFile(filepath.Join(a.cfg.Logging.Dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			fail(w, http.StatusNotFound, fmt.Sprintf("log file %s not found", name))
			return
		}
		a.writeError(w, r, fmt.Errorf("read log file: %w", err))
		return
	}
	ok(w, nil, string(data))
}

// listLogFiles returns the *.log files of dir sorted by name.
func listLogFiles(dir string) ([]LogFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]LogFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		lines, err := countLines(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		files = append(files, LogFile{
			Filename:  e.Name(),
			Filesize:  info.Size(),
			LineCount: lines,
			CreatedAt: fileCreated(info),
			UpdatedAt: info.ModTime(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return files, nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var (
		count int
		last  byte = '\n'
		buf        = make([]byte, 32*1024)
		r          = bufio.NewReader(f)
	)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			count += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != '\n' {
		count++
	}
	return count, nil
}

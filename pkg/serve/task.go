package serve

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/qcserestipy/gompi/pkg/remote"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Task records one invocation handled by the node.
type Task struct {
	ID       int         `json:"id"`
	Status   TaskStatus  `json:"status"`
	Function string      `json:"function"`
	Args     remote.Args `json:"args"`
	Result   uint64      `json:"result"`
	Error    string      `json:"error,omitempty"`
	Created  time.Time   `json:"created"`
	Finished time.Time   `json:"finished"`
}

// taskStore keeps the most recent invocations, oldest first.
type taskStore struct {
	mu     sync.Mutex
	nextID int
	limit  int
	tasks  []Task
}

func newTaskStore(limit int) *taskStore {
	return &taskStore{nextID: 1, limit: limit}
}

func (s *taskStore) add(req remote.Request) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.tasks = append(s.tasks, Task{
		ID:       id,
		Status:   StatusPending,
		Function: req.Function,
		Args:     req.Args,
		Created:  time.Now(),
	})
	if len(s.tasks) > s.limit {
		s.tasks = append(s.tasks[:0], s.tasks[len(s.tasks)-s.limit:]...)
	}
	return id
}

func (s *taskStore) update(id int, fn func(*Task)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			fn(&s.tasks[i])
			return
		}
	}
}

func (s *taskStore) start(id int) {
	s.update(id, func(t *Task) { t.Status = StatusRunning })
}

func (s *taskStore) finish(id int, result uint64, err error) {
	s.update(id, func(t *Task) {
		t.Finished = time.Now()
		if err != nil {
			t.Status = StatusFailed
			t.Error = err.Error()
			return
		}
		t.Status = StatusCompleted
		t.Result = result
	})
}

func (s *taskStore) list() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *taskStore) get(id int) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// ----------------------------------------------------------------
// HTTP routes
// ----------------------------------------------------------------

// createTaskRoutes wires up the read-only GET handlers on /tasks.
func createTaskRoutes(r chi.Router, tasks *taskStore) {
	r.Get("/tasks", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, tasks.list())
	})

	r.Get("/tasks/{id}", func(w http.ResponseWriter, req *http.Request) {
		idParam := chi.URLParam(req, "id")
		id, err := strconv.Atoi(idParam)
		if err != nil {
			http.Error(w,
				fmt.Sprintf("invalid task ID '%s': %v", idParam, err),
				http.StatusBadRequest,
			)
			return
		}

		if task, ok := tasks.get(id); ok {
			writeJSON(w, http.StatusOK, task)
			return
		}

		http.Error(w,
			fmt.Sprintf("task not found with ID %d", id),
			http.StatusNotFound,
		)
	})
}

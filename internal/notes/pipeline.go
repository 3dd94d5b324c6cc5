// Package notes turns final transcription lines into incrementally updated
// lecture notes using the configured text generator.
package notes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lecturehall/internal/ai"
	"lecturehall/pkg/interfaces"
	"lecturehall/pkg/types"
)

// DefaultInstructions opens every prompt unless configured otherwise
const DefaultInstructions = "You maintain concise study notes for a live lecture. " +
	"Update the current notes with the new transcript. Return only the full updated notes in Markdown."

// Publisher delivers a stored note to the room
type Publisher interface {
	PublishNote(note *types.LectureNote)
}

// Config tunes prompt construction
type Config struct {
	Instructions string
	// MaxBufferChars bounds the transcript kept while generation keeps failing
	MaxBufferChars int
}

// DefaultConfig returns the default pipeline settings
func DefaultConfig() Config {
	return Config{
		Instructions:   DefaultInstructions,
		MaxBufferChars: 16000,
	}
}

type lectureState struct {
	buffer  []string
	running bool
	epoch   uint64 // bumped by Drop
	trimmed int    // lines discarded from the front by trimLocked
}

// Pipeline buffers transcript per lecture and runs at most one generation per lecture at a time
// ARCHITECTURAL DISCOVERY: Generation runs detached from the connection that
// sent the transcription; the result reaches the room through the Publisher
type Pipeline struct {
	store     interfaces.Store
	generator ai.Generator
	publisher Publisher
	config    Config
	logger    *zap.Logger

	mu       sync.Mutex
	lectures map[types.LectureID]*lectureState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now   func() time.Time
	newID func() string
}

// NewPipeline creates a pipeline. A nil or ai.Disabled generator disables it.
func NewPipeline(store interfaces.Store, generator ai.Generator, publisher Publisher, config Config, logger *zap.Logger) *Pipeline {
	if generator == nil {
		generator = ai.Disabled{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Instructions == "" {
		config.Instructions = DefaultInstructions
	}
	if config.MaxBufferChars <= 0 {
		config.MaxBufferChars = DefaultConfig().MaxBufferChars
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		store:     store,
		generator: generator,
		publisher: publisher,
		config:    config,
		logger:    logger.With(zap.String("module", "notes")),
		lectures:  make(map[types.LectureID]*lectureState),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Enabled reports whether a real generator is configured
func (p *Pipeline) Enabled() bool {
	_, disabled := p.generator.(ai.Disabled)
	return !disabled
}

// Submit buffers a final transcription line and starts generation if idle
func (p *Pipeline) Submit(lectureID types.LectureID, speakerID types.UserID, text string) {
	text = strings.TrimSpace(text)
	if text == "" || !p.Enabled() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx.Err() != nil {
		return
	}

	st, ok := p.lectures[lectureID]
	if !ok {
		st = &lectureState{}
		p.lectures[lectureID] = st
	}
	st.buffer = append(st.buffer, fmt.Sprintf("%s: %s", speakerID, text))
	p.trimLocked(st)

	if st.running {
		return
	}
	st.running = true
	p.wg.Add(1)
	go p.generate(lectureID, st)
}

// Drop forgets buffered transcript for a lecture whose room emptied.
// An in-flight generation still stores its note.
func (p *Pipeline) Drop(lectureID types.LectureID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.lectures[lectureID]
	if !ok {
		return
	}
	st.buffer = nil
	st.epoch++
	if !st.running {
		delete(p.lectures, lectureID)
	}
}

// Pending returns the number of buffered lines for a lecture
func (p *Pipeline) Pending(lectureID types.LectureID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.lectures[lectureID]; ok {
		return len(st.buffer)
	}
	return 0
}

// Wait blocks until no generation is running
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Close cancels in-flight generations and waits for them
func (p *Pipeline) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pipeline) generate(lectureID types.LectureID, st *lectureState) {
	defer p.wg.Done()
	log := p.logger.With(zap.String("lecture_id", string(lectureID)))

	for {
		p.mu.Lock()
		if len(st.buffer) == 0 || p.ctx.Err() != nil {
			st.running = false
			if len(st.buffer) == 0 {
				delete(p.lectures, lectureID)
			}
			p.mu.Unlock()
			return
		}
		batch := append([]string(nil), st.buffer...)
		epoch, trimmed := st.epoch, st.trimmed
		p.mu.Unlock()

		note, err := p.generateNote(lectureID, batch)
		if err != nil {
			if ai.IsDisabled(err) {
				log.Debug("note generation skipped", zap.Error(err))
			} else {
				log.Warn("note generation failed, keeping transcript for next round", zap.Error(err))
			}
			p.mu.Lock()
			st.running = false
			p.mu.Unlock()
			return
		}

		p.publisher.PublishNote(note)
		log.Info("lecture note updated", zap.String("note_id", note.ID), zap.Int("lines", len(batch)))

		p.mu.Lock()
		if st.epoch == epoch {
			consumed := len(batch) - (st.trimmed - trimmed)
			if consumed > len(st.buffer) {
				consumed = len(st.buffer)
			}
			if consumed > 0 {
				st.buffer = st.buffer[consumed:]
			}
		}
		p.mu.Unlock()
	}
}

func (p *Pipeline) generateNote(lectureID types.LectureID, batch []string) (*types.LectureNote, error) {
	previous, err := p.latestNote(lectureID)
	if err != nil {
		return nil, err
	}

	text, err := p.generator.Generate(p.ctx, BuildPrompt(p.config.Instructions, previous, batch))
	if err != nil {
		return nil, err
	}

	note := &types.LectureNote{
		ID:        p.newID(),
		LectureID: lectureID,
		Content:   text,
		Timestamp: p.now(),
	}
	if err := p.store.AppendNote(p.ctx, note); err != nil {
		return nil, fmt.Errorf("failed to store lecture note: %w", err)
	}
	return note, nil
}

func (p *Pipeline) latestNote(lectureID types.LectureID) (string, error) {
	notes, err := p.store.ListNotes(p.ctx, lectureID)
	if err != nil {
		return "", fmt.Errorf("failed to load previous note: %w", err)
	}
	if len(notes) == 0 {
		return "", nil
	}
	return notes[len(notes)-1].Content, nil
}

// callers hold p.mu
func (p *Pipeline) trimLocked(st *lectureState) {
	total := 0
	for _, line := range st.buffer {
		total += len(line)
	}
	for total > p.config.MaxBufferChars && len(st.buffer) > 1 {
		total -= len(st.buffer[0])
		st.buffer = st.buffer[1:]
		st.trimmed++
	}
}

// BuildPrompt combines the instructions, the current note and new transcript lines
func BuildPrompt(instructions, previous string, transcript []string) string {
	var b strings.Builder
	b.WriteString(instructions)
	b.WriteString("\n\nCurrent notes:\n")
	if previous == "" {
		b.WriteString("(none yet)")
	} else {
		b.WriteString(previous)
	}
	b.WriteString("\n\nNew transcript:\n")
	b.WriteString(strings.Join(transcript, "\n"))
	return b.String()
}

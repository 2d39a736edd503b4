package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/snappy-loop/talebot/internal/audio"
	"github.com/snappy-loop/talebot/internal/llm"
	"github.com/snappy-loop/talebot/internal/session"
)

type sentEvent struct {
	kind   string // "text", "photo", "voice", "audio"
	chatID int64
	text   string // message text or caption
}

// fakeSender records outbound units. Optional stages send concurrently, so
// access is locked.
type fakeSender struct {
	mu     sync.Mutex
	events []sentEvent
}

func (f *fakeSender) record(kind string, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, sentEvent{kind, chatID, text})
	return nil
}

func (f *fakeSender) SendText(chatID int64, text string) error {
	return f.record("text", chatID, text)
}
func (f *fakeSender) SendPhoto(chatID int64, _ []byte, caption string) error {
	return f.record("photo", chatID, caption)
}
func (f *fakeSender) SendVoice(chatID int64, _ []byte, caption string) error {
	return f.record("voice", chatID, caption)
}
func (f *fakeSender) SendAudio(chatID int64, _ []byte, caption string) error {
	return f.record("audio", chatID, caption)
}

func (f *fakeSender) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, len(f.events))
	for i, e := range f.events {
		kinds[i] = e.kind
	}
	return kinds
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, e := range f.events {
		if e.kind == "text" {
			texts = append(texts, e.text)
		}
	}
	return texts
}

type fakeStories struct {
	story string
	err   error
	calls int
}

func (f *fakeStories) GenerateStory(context.Context, string, string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.story, nil
}

type fakeImages struct {
	err   error
	calls int
}

func (f *fakeImages) GenerateImage(context.Context, string, string) (*llm.Image, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Image{Data: []byte("png-bytes"), MimeType: "image/png"}, nil
}

type fakeSpeech struct {
	err   error
	calls int
}

func (f *fakeSpeech) Synthesize(context.Context, string) (*llm.Audio, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Audio{Data: []byte("wav-bytes"), MimeType: "audio/wav"}, nil
}

// fakeEncoder returns its configured kind without touching ffmpeg.
type fakeEncoder struct {
	kind audio.Kind
}

func (f *fakeEncoder) EncodeVoice(_ context.Context, baseline []byte, mime string) *audio.Artifact {
	if f.kind == audio.KindVoice {
		return &audio.Artifact{Data: []byte("ogg-bytes"), Kind: audio.KindVoice, MimeType: "audio/ogg"}
	}
	return &audio.Artifact{Data: baseline, Kind: audio.KindAudio, MimeType: mime}
}

type fakeArchive struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeArchive) ArchiveTale(context.Context, int64, string, *llm.Image, *audio.Artifact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}

type fixture struct {
	store   *session.MemoryStore
	sender  *fakeSender
	stories *fakeStories
	images  *fakeImages
	speech  *fakeSpeech
	archive *fakeArchive
	orch    *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   session.NewMemoryStore(),
		sender:  &fakeSender{},
		stories: &fakeStories{story: "Жила-была Алина, и подружилась она с драконом."},
		images:  &fakeImages{},
		speech:  &fakeSpeech{},
		archive: &fakeArchive{},
	}
	f.orch = New(f.store, f.stories, f.images, f.speech, &fakeEncoder{kind: audio.KindVoice}, f.sender, f.archive, Options{})
	return f
}

func TestHandleStart_ResetsSession(t *testing.T) {
	f := newFixture(t)
	f.store.Put(&session.Session{ChatID: 1, Stage: session.StageAwaitingTopic, ChildName: "Егор"})

	f.orch.HandleStart(context.Background(), 1)

	sess := f.store.Get(1)
	if sess.Stage != session.StageAwaitingName {
		t.Errorf("stage = %v, want awaiting name", sess.Stage)
	}
	if sess.ChildName != "" {
		t.Errorf("name = %q, want cleared", sess.ChildName)
	}
	if len(f.sender.texts()) != 1 {
		t.Errorf("expected one greeting, got %v", f.sender.texts())
	}
}

func TestHandleText_FirstContactCapturesName(t *testing.T) {
	f := newFixture(t)

	// No prior contact, no /start: input is treated as the name.
	f.orch.HandleText(context.Background(), 5, "Алина")

	sess := f.store.Get(5)
	if sess == nil {
		t.Fatal("session not created on first contact")
	}
	if sess.Stage != session.StageAwaitingTopic {
		t.Errorf("stage = %v, want awaiting topic", sess.Stage)
	}
	if sess.ChildName != "Алина" {
		t.Errorf("name = %q, want Алина", sess.ChildName)
	}
	texts := f.sender.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Алина") {
		t.Errorf("acknowledgement should echo the name, got %v", texts)
	}
}

func TestHandleText_EmptyInputReprompts(t *testing.T) {
	f := newFixture(t)

	f.orch.HandleText(context.Background(), 2, "   ")
	sess := f.store.Get(2)
	if sess == nil || sess.Stage != session.StageAwaitingName {
		t.Fatalf("empty input must not advance the stage: %+v", sess)
	}

	f.store.Put(&session.Session{ChatID: 3, Stage: session.StageAwaitingTopic, ChildName: "Егор"})
	f.orch.HandleText(context.Background(), 3, "\n\t ")
	if f.stories.calls != 0 {
		t.Error("whitespace-only topic must not trigger generation")
	}
	if got := f.store.Get(3); got.Stage != session.StageAwaitingTopic || got.ChildName != "Егор" {
		t.Errorf("session changed on empty input: %+v", got)
	}
}

func TestHandleText_NameTruncated(t *testing.T) {
	f := newFixture(t)

	longName := strings.Repeat("а", 100)
	f.orch.HandleText(context.Background(), 4, longName)

	sess := f.store.Get(4)
	if got := len([]rune(sess.ChildName)); got != 65 { // 64 runes + ellipsis
		t.Errorf("name rune length = %d, want 65", got)
	}
	if !strings.HasSuffix(sess.ChildName, "…") {
		t.Error("truncated name should carry an ellipsis marker")
	}
}

func TestDelivery_StoryFirstThenOptionalStages(t *testing.T) {
	f := newFixture(t)
	f.store.Put(&session.Session{ChatID: 10, Stage: session.StageAwaitingTopic, ChildName: "Алина"})

	f.orch.HandleText(context.Background(), 10, "дружба с драконом")

	kinds := f.sender.kinds()
	storyIdx, photoIdx, voiceIdx := -1, -1, -1
	for i, e := range f.sender.events {
		switch {
		case e.kind == "text" && e.text == f.stories.story:
			storyIdx = i
		case e.kind == "photo":
			photoIdx = i
		case e.kind == "voice":
			voiceIdx = i
		}
	}
	if storyIdx < 0 || photoIdx < 0 || voiceIdx < 0 {
		t.Fatalf("missing artifacts, sent kinds: %v", kinds)
	}
	if storyIdx > photoIdx || storyIdx > voiceIdx {
		t.Errorf("story must be the first artifact, order: %v", kinds)
	}
	if last := kinds[len(kinds)-1]; last != "text" {
		t.Errorf("next-topic prompt must come last, order: %v", kinds)
	}

	sess := f.store.Get(10)
	if sess.Stage != session.StageAwaitingTopic || sess.ChildName != "Алина" {
		t.Errorf("session after delivery = %+v, want awaiting topic with name retained", sess)
	}
	if f.archive.calls != 1 {
		t.Errorf("archive calls = %d, want 1", f.archive.calls)
	}
}

func TestDelivery_StoryFailureStopsPipeline(t *testing.T) {
	f := newFixture(t)
	f.stories.err = errors.New("both models failed")
	f.store.Put(&session.Session{ChatID: 11, Stage: session.StageAwaitingTopic, ChildName: "Егор"})

	f.orch.HandleText(context.Background(), 11, "космос")

	if f.images.calls != 0 || f.speech.calls != 0 {
		t.Errorf("optional stages must not run after mandatory failure: images=%d speech=%d", f.images.calls, f.speech.calls)
	}

	failures := 0
	for _, text := range f.sender.texts() {
		if text == msgStoryFailed {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("failure notices = %d, want exactly 1", failures)
	}

	// The user is not stuck: ready for another topic.
	sess := f.store.Get(11)
	if sess.Stage != session.StageAwaitingTopic || sess.ChildName != "Егор" {
		t.Errorf("session after failure = %+v", sess)
	}
	if f.archive.calls != 0 {
		t.Error("nothing to archive after mandatory failure")
	}
}

func TestDelivery_ImageFailureIsolated(t *testing.T) {
	f := newFixture(t)
	f.images.err = errors.New("policy rejection")
	f.store.Put(&session.Session{ChatID: 12, Stage: session.StageAwaitingTopic, ChildName: "Мила"})

	f.orch.HandleText(context.Background(), 12, "зимний лес")

	kinds := f.sender.kinds()
	for _, k := range kinds {
		if k == "photo" {
			t.Error("no photo should be sent when image generation fails")
		}
	}
	// Story and narration still delivered, no error shown for the image.
	storySent, voiceSent := false, false
	for _, e := range f.sender.events {
		if e.kind == "text" && e.text == f.stories.story {
			storySent = true
		}
		if e.kind == "voice" {
			voiceSent = true
		}
		if strings.Contains(e.text, "⚠️") {
			t.Errorf("optional-stage failure surfaced to the user: %q", e.text)
		}
	}
	if !storySent || !voiceSent {
		t.Errorf("story/voice delivery affected by image failure: %v", kinds)
	}
}

func TestDelivery_SpeechFailureIsolated(t *testing.T) {
	f := newFixture(t)
	f.speech.err = errors.New("engine unavailable")
	f.store.Put(&session.Session{ChatID: 13, Stage: session.StageAwaitingTopic, ChildName: "Ваня"})

	f.orch.HandleText(context.Background(), 13, "пираты")

	photoSent := false
	for _, e := range f.sender.events {
		if e.kind == "voice" || e.kind == "audio" {
			t.Error("no narration should be sent when synthesis fails")
		}
		if e.kind == "photo" {
			photoSent = true
		}
	}
	if !photoSent {
		t.Error("illustration delivery affected by speech failure")
	}
}

func TestDelivery_EncoderFallbackSendsGenericAudio(t *testing.T) {
	f := newFixture(t)
	f.orch = New(f.store, f.stories, f.images, f.speech, &fakeEncoder{kind: audio.KindAudio}, f.sender, nil, Options{})
	f.store.Put(&session.Session{ChatID: 14, Stage: session.StageAwaitingTopic, ChildName: "Катя"})

	f.orch.HandleText(context.Background(), 14, "сад")

	audioSent := false
	for _, e := range f.sender.events {
		if e.kind == "voice" {
			t.Error("voice bubble sent despite baseline-only artifact")
		}
		if e.kind == "audio" {
			audioSent = true
		}
	}
	if !audioSent {
		t.Error("baseline artifact should still be delivered as generic audio")
	}
}

func TestDelivery_RepeatedTopicsReuseName(t *testing.T) {
	f := newFixture(t)
	f.store.Put(&session.Session{ChatID: 15, Stage: session.StageAwaitingTopic, ChildName: "Алина"})

	f.orch.HandleText(context.Background(), 15, "первая тема")
	f.orch.HandleText(context.Background(), 15, "вторая тема")

	if f.stories.calls != 2 {
		t.Errorf("story calls = %d, want 2", f.stories.calls)
	}
	sess := f.store.Get(15)
	if sess.Stage != session.StageAwaitingTopic || sess.ChildName != "Алина" {
		t.Errorf("session after repeated topics = %+v", sess)
	}
}

func TestStats_CountsDeliveries(t *testing.T) {
	f := newFixture(t)
	f.store.Put(&session.Session{ChatID: 16, Stage: session.StageAwaitingTopic, ChildName: "Егор"})

	f.orch.HandleText(context.Background(), 16, "роботы")

	stats := f.orch.Stats()
	if stats.StoriesDelivered != 1 {
		t.Errorf("StoriesDelivered = %d, want 1", stats.StoriesDelivered)
	}
	if stats.ImagesDelivered != 1 || stats.NarrationsDelivered != 1 {
		t.Errorf("optional deliveries = %d/%d, want 1/1", stats.ImagesDelivered, stats.NarrationsDelivered)
	}
	if stats.Sessions != 1 {
		t.Errorf("Sessions = %d, want 1", stats.Sessions)
	}
}

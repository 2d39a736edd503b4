// Package bot holds the dialogue state machine and the generation-and-
// delivery pipeline behind it.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/snappy-loop/talebot/internal/audio"
	"github.com/snappy-loop/talebot/internal/llm"
	"github.com/snappy-loop/talebot/internal/session"
	"github.com/snappy-loop/talebot/internal/text"
)

// StoryGenerator produces tale text. Its failure is the only one surfaced
// to the user.
type StoryGenerator interface {
	GenerateStory(ctx context.Context, childName, topic string) (string, error)
}

// ImageGenerator produces an illustration. Failure means no illustration.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, childName, topic string) (*llm.Image, error)
}

// SpeechSynthesizer produces spoken audio for tale text. Failure means no
// narration.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, taleText string) (*llm.Audio, error)
}

// VoiceEncoder converts baseline audio into a deliverable artifact. It
// never fails; degradation is expressed through the artifact's Kind.
type VoiceEncoder interface {
	EncodeVoice(ctx context.Context, baseline []byte, baselineMime string) *audio.Artifact
}

// Sender delivers outbound units to a chat.
type Sender interface {
	SendText(chatID int64, text string) error
	SendPhoto(chatID int64, data []byte, caption string) error
	SendVoice(chatID int64, data []byte, caption string) error
	SendAudio(chatID int64, data []byte, caption string) error
}

// Archiver stores delivered artifacts out of band. Best-effort; errors are
// the archiver's own to log.
type Archiver interface {
	ArchiveTale(ctx context.Context, chatID int64, story string, image *llm.Image, voice *audio.Artifact)
}

// User-facing copy.
const (
	msgGreeting    = "Привет! Я Бультыхвост 🐾\nДавай сочиним сказку. Как зовут ребёнка?"
	msgAskName     = "Как зовут ребёнка?"
	msgAskTopic    = "Напиши тему сказки ✨"
	msgWriting     = "Пишу сказку… 📖"
	msgStoryFailed = "⚠️ Не удалось сочинить сказку. Попробуй ещё раз чуть позже."
	msgNextTopic   = "Хочешь ещё сказку? Просто напиши новую тему 🙂"
	captionPhoto   = "Иллюстрация 📷"
	captionVoice   = "Озвучка сказки 🎙️"
)

// Options bounds orchestrator inputs and optional-stage latency.
type Options struct {
	MaxNameLength        int
	MaxTopicLength       int
	OptionalStageTimeout time.Duration
}

// Orchestrator routes inbound messages through the session state machine
// and, on a completed (name, topic) pair, runs the generation pipeline:
// story first and mandatory, illustration and narration after, each
// independently fault-isolated.
type Orchestrator struct {
	store   session.Store
	stories StoryGenerator
	images  ImageGenerator
	speech  SpeechSynthesizer
	encoder VoiceEncoder
	sender  Sender
	archive Archiver // optional
	opts    Options

	stats stats
}

// New creates an orchestrator. archive may be nil.
func New(store session.Store, stories StoryGenerator, images ImageGenerator, speech SpeechSynthesizer, encoder VoiceEncoder, sender Sender, archive Archiver, opts Options) *Orchestrator {
	if opts.MaxNameLength <= 0 {
		opts.MaxNameLength = 64
	}
	if opts.MaxTopicLength <= 0 {
		opts.MaxTopicLength = 200
	}
	if opts.OptionalStageTimeout <= 0 {
		opts.OptionalStageTimeout = 90 * time.Second
	}
	return &Orchestrator{
		store:   store,
		stories: stories,
		images:  images,
		speech:  speech,
		encoder: encoder,
		sender:  sender,
		archive: archive,
		opts:    opts,
	}
}

// HandleStart resets the chat's session to the beginning of the dialogue,
// clearing any captured name.
func (o *Orchestrator) HandleStart(ctx context.Context, chatID int64) {
	o.store.Put(&session.Session{ChatID: chatID, Stage: session.StageAwaitingName})
	o.send(chatID, msgGreeting)
}

// HandleText advances the chat's dialogue with one inbound text message.
// Every input is either accepted or re-prompted; there is no invalid
// transition.
func (o *Orchestrator) HandleText(ctx context.Context, chatID int64, input string) {
	sess := o.store.Get(chatID)
	if sess == nil {
		// First contact without /start: behave as if awaiting the name.
		sess = &session.Session{ChatID: chatID, Stage: session.StageAwaitingName}
		o.store.Put(sess)
	}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		switch sess.Stage {
		case session.StageAwaitingName:
			o.send(chatID, msgAskName)
		default:
			o.send(chatID, msgAskTopic)
		}
		return
	}

	switch sess.Stage {
	case session.StageAwaitingName:
		sess.ChildName = text.Clip(trimmed, o.opts.MaxNameLength)
		sess.Stage = session.StageAwaitingTopic
		o.store.Put(sess)
		o.send(chatID, fmt.Sprintf("Имя ребёнка — %s. Отлично! Теперь напиши тему сказки ✨", sess.ChildName))

	case session.StageAwaitingTopic:
		topic := text.Clip(trimmed, o.opts.MaxTopicLength)
		o.deliver(ctx, sess, topic)
		// The name is retained and the stage stays at awaiting-topic, so
		// the next message starts another tale for the same child.
		o.send(chatID, msgNextTopic)
	}
}

// deliver runs the generation pipeline for a completed (name, topic) pair.
func (o *Orchestrator) deliver(ctx context.Context, sess *session.Session, topic string) {
	chatID := sess.ChatID
	o.send(chatID, msgWriting)

	story, err := o.stories.GenerateStory(ctx, sess.ChildName, topic)
	if err != nil {
		log.Error().Err(err).
			Int64("chat_id", chatID).
			Str("topic", topic).
			Msg("Story generation failed")
		o.stats.storyFailures.Add(1)
		o.send(chatID, msgStoryFailed)
		return
	}

	// The tale text is the first artifact the user sees, before any
	// optional stage starts.
	o.send(chatID, story)
	o.stats.storiesDelivered.Add(1)

	var (
		wg    sync.WaitGroup
		image *llm.Image
		voice *audio.Artifact
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		image = o.deliverImage(ctx, chatID, sess.ChildName, topic)
	}()
	go func() {
		defer wg.Done()
		voice = o.deliverNarration(ctx, chatID, story)
	}()
	wg.Wait()

	if o.archive != nil {
		o.archive.ArchiveTale(ctx, chatID, story, image, voice)
	}
}

// deliverImage generates and sends the illustration. Any failure is logged
// and swallowed; the user never hears about a missing picture.
func (o *Orchestrator) deliverImage(ctx context.Context, chatID int64, childName, topic string) *llm.Image {
	stageCtx, cancel := context.WithTimeout(ctx, o.opts.OptionalStageTimeout)
	defer cancel()

	image, err := o.images.GenerateImage(stageCtx, childName, topic)
	if err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("Illustration not generated")
		return nil
	}
	if err := o.sender.SendPhoto(chatID, image.Data, captionPhoto); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send illustration")
		return nil
	}
	o.stats.imagesDelivered.Add(1)
	return image
}

// deliverNarration synthesizes, encodes and sends the spoken tale. A
// missing transcoder degrades to a generic audio attachment; a failed
// synthesis is logged and swallowed.
func (o *Orchestrator) deliverNarration(ctx context.Context, chatID int64, story string) *audio.Artifact {
	stageCtx, cancel := context.WithTimeout(ctx, o.opts.OptionalStageTimeout)
	defer cancel()

	speech, err := o.speech.Synthesize(stageCtx, story)
	if err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("Narration not generated")
		return nil
	}

	artifact := o.encoder.EncodeVoice(stageCtx, speech.Data, speech.MimeType)

	var sendErr error
	if artifact.Kind == audio.KindVoice {
		sendErr = o.sender.SendVoice(chatID, artifact.Data, captionVoice)
	} else {
		sendErr = o.sender.SendAudio(chatID, artifact.Data, captionVoice)
	}
	if sendErr != nil {
		log.Warn().Err(sendErr).Int64("chat_id", chatID).Msg("Failed to send narration")
		return nil
	}
	o.stats.narrationsDelivered.Add(1)
	return artifact
}

func (o *Orchestrator) send(chatID int64, text string) {
	if err := o.sender.SendText(chatID, text); err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}

// Sessions returns the number of tracked sessions.
func (o *Orchestrator) Sessions() int {
	return o.store.Len()
}

// Package types defines the shared types used across all Animus packages.
//
// These types form the lingua franca between the HTTP surface, the job
// planner, the preprocessing and generation workers, and the memory layer.
// They are intentionally minimal — each package defines its own domain types,
// but cross-cutting data structures live here to avoid circular imports.
package types

import (
	"strings"
	"time"
)

// Attachment is a single file attached to a user message. Attachments are
// classified by MIME type prefix: audio attachments are transcribed, image
// attachments are described, everything else is rejected at planning time.
type Attachment struct {
	// URL is the fetchable location of the attachment content.
	URL string `json:"url"`

	// Name is the original filename (e.g., "image1.png").
	Name string `json:"name"`

	// ContentType is the MIME type (e.g., "image/png", "audio/ogg").
	ContentType string `json:"contentType"`

	// Size is the attachment size in bytes. Must be non-negative.
	Size int64 `json:"size"`

	// IsVoiceMessage marks audio recorded as a platform voice message.
	// A voice message with no accompanying text causes the transcript to
	// replace the user message entirely.
	IsVoiceMessage bool `json:"isVoiceMessage,omitempty"`
}

// IsAudio reports whether the attachment carries audio content.
func (a Attachment) IsAudio() bool {
	return strings.HasPrefix(a.ContentType, "audio/")
}

// IsImage reports whether the attachment carries image content.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.ContentType, "image/")
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`

	// Name is an optional participant name (for multi-speaker contexts).
	Name string `json:"name,omitempty"`
}

// HistoryMessage is one entry of stored conversation history, as retrieved
// from the surrounding service. Unlike [Message] it carries author identity
// and a timestamp so the context assembler can format speakers and order
// cross-channel groups.
type HistoryMessage struct {
	// AuthorID is the persona ID of the author.
	AuthorID string `json:"authorId"`

	// AuthorName is the display name used when the message was written.
	AuthorName string `json:"authorName"`

	// Content is the message text.
	Content string `json:"content"`

	// FromAssistant marks messages written by the personality itself.
	FromAssistant bool `json:"fromAssistant"`

	// Timestamp is when the message was written.
	Timestamp time.Time `json:"timestamp"`
}

// CrossChannelGroup is one other channel's recent conversation, supplied by
// the caller as cross-channel context. Groups arrive ordered
// most-recent-channel first; messages within a group are chronological.
type CrossChannelGroup struct {
	// ChannelEnvironment describes where the conversation happened
	// (server and channel names, topic).
	ChannelEnvironment string `json:"channelEnvironment"`

	// Messages in chronological order.
	Messages []HistoryMessage `json:"messages"`
}

// ReferencedMessage is a message the user replied to or linked, included in
// the prompt as tertiary context.
type ReferencedMessage struct {
	AuthorName string `json:"authorName"`
	Content    string `json:"content"`

	// Attachments carried by the referenced message. Image attachments are
	// described alongside the current message's attachments.
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Protocol is the behaviour-rule portion of a personality: how to respond,
// as opposed to who the personality is. Protocol content is emitted at the
// opposite end of the prompt from the persona sections and is never mixed
// into them.
type Protocol struct {
	// Legacy holds pre-structured markup used by older personality exports.
	// When non-empty it is emitted verbatim and the arrays are ignored.
	Legacy string `json:"legacy,omitempty"`

	// Permissions are statements about what the personality may do.
	Permissions []string `json:"permissions,omitempty"`

	// CharacterDirectives steer in-character behaviour.
	CharacterDirectives []string `json:"characterDirectives,omitempty"`

	// FormattingRules constrain the output format.
	FormattingRules []string `json:"formattingRules,omitempty"`
}

// IsEmpty reports whether the protocol carries no rules at all.
func (p Protocol) IsEmpty() bool {
	return p.Legacy == "" &&
		len(p.Permissions) == 0 &&
		len(p.CharacterDirectives) == 0 &&
		len(p.FormattingRules) == 0
}

// LLMParams is the full set of tunable sampling and routing parameters for a
// generation call. Pointer fields distinguish "not set" (nil, fall through to
// the next cascade tier) from an explicit zero value.
type LLMParams struct {
	Model             string         `json:"model,omitempty"`
	Temperature       *float64       `json:"temperature,omitempty"`
	MaxTokens         *int           `json:"maxTokens,omitempty"`
	TopP              *float64       `json:"topP,omitempty"`
	TopK              *int           `json:"topK,omitempty"`
	FrequencyPenalty  *float64       `json:"frequencyPenalty,omitempty"`
	PresencePenalty   *float64       `json:"presencePenalty,omitempty"`
	RepetitionPenalty *float64       `json:"repetitionPenalty,omitempty"`
	MinP              *float64       `json:"minP,omitempty"`
	TopA              *float64       `json:"topA,omitempty"`
	Seed              *int           `json:"seed,omitempty"`
	Stop              []string       `json:"stop,omitempty"`
	LogitBias         map[string]any `json:"logitBias,omitempty"`
	ResponseFormat    map[string]any `json:"responseFormat,omitempty"`
	Reasoning         map[string]any `json:"reasoning,omitempty"`
	Transforms        []string       `json:"transforms,omitempty"`
	Route             string         `json:"route,omitempty"`
	Verbosity         string         `json:"verbosity,omitempty"`
}

// Personality is a loaded behavioural profile used as the assistant identity
// for a conversation: descriptive persona fields plus a [Protocol] and the
// LLM parameters that govern its generation calls.
type Personality struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// Persona description fields. Empty fields are omitted from the prompt.
	Character  string `json:"character,omitempty"`
	Traits     string `json:"traits,omitempty"`
	Tone       string `json:"tone,omitempty"`
	Age        string `json:"age,omitempty"`
	Appearance string `json:"appearance,omitempty"`
	Likes      string `json:"likes,omitempty"`
	Dislikes   string `json:"dislikes,omitempty"`
	Goals      string `json:"goals,omitempty"`
	Examples   string `json:"examples,omitempty"`

	Protocol Protocol `json:"protocol,omitempty"`

	// ContextWindowTokens is the prompt token budget. Must be positive.
	ContextWindowTokens int `json:"contextWindowTokens"`

	// Temperature in [0, 2].
	Temperature float64 `json:"temperature"`

	// MaxTokens caps completion length. Must be positive.
	MaxTokens int `json:"maxTokens"`

	// VisionModel, when set, overrides the model used for image description.
	VisionModel string `json:"visionModel,omitempty"`

	// Params carries the extended LLM parameters for this personality.
	Params LLMParams `json:"params,omitempty"`
}

// RequestContext identifies where a request came from and what surrounds it.
type RequestContext struct {
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId,omitempty"`
	ServerID  string `json:"serverId,omitempty"`

	// SessionID identifies an ephemeral conversation for session-canon
	// memory scoping. Empty outside sessions.
	SessionID string `json:"sessionId,omitempty"`

	Attachments         []Attachment        `json:"attachments,omitempty"`
	ReferencedMessages  []ReferencedMessage `json:"referencedMessages,omitempty"`
	ConversationHistory []HistoryMessage    `json:"conversationHistory,omitempty"`

	// CrossChannelHistory carries prior conversations from other channels,
	// most-recent-channel first, for the prompt's prior-conversations block.
	CrossChannelHistory []CrossChannelGroup `json:"crossChannelHistory,omitempty"`
}

// Request is a validated user submission. Immutable after enqueue: the
// planner derives jobs from it but never mutates it. Created at acceptance,
// discarded when the request reaches a terminal state.
type Request struct {
	// RequestID is generated at acceptance.
	RequestID string `json:"requestId"`

	Personality Personality    `json:"personality"`
	Message     string         `json:"message"`
	Context     RequestContext `json:"context"`

	// UserAPIKey, when set, replaces the platform key for provider calls.
	UserAPIKey string `json:"userApiKey,omitempty"`

	// ResponseDestination tells the delivery layer where results go.
	ResponseDestination string `json:"responseDestination"`

	// AcceptedAt is when the request entered the system.
	AcceptedAt time.Time `json:"acceptedAt"`
}

// JobType classifies what a job does.
type JobType string

const (
	JobAudioTranscription JobType = "audio-transcription"
	JobImageDescription   JobType = "image-description"
	JobShapesImport       JobType = "shapes-import"
	JobLLMGeneration      JobType = "llm-generation"
)

// IsValid reports whether t is a recognised job type.
func (t JobType) IsValid() bool {
	switch t {
	case JobAudioTranscription, JobImageDescription, JobShapesImport, JobLLMGeneration:
		return true
	}
	return false
}

// JobState is the lifecycle state of a job. Transitions only move forward:
// queued → active → completed|failed → delivered.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobDelivered JobState = "delivered"
)

// CanTransitionTo reports whether moving from s to next is a legal forward
// edge in the job lifecycle.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case JobQueued:
		return next == JobActive || next == JobFailed
	case JobActive:
		return next == JobCompleted || next == JobFailed
	case JobCompleted, JobFailed:
		return next == JobDelivered
	}
	return false
}

// JobDependency points at another job whose result must be readable before
// the dependent job executes.
type JobDependency struct {
	// JobID is the id of the prerequisite job.
	JobID string `json:"jobId"`

	// ResultKey is the key under which the prerequisite's result is stored.
	ResultKey string `json:"resultKey"`

	// Type is the prerequisite's job type.
	Type JobType `json:"type"`
}

// Job is a unit of work enqueued by the planner. Exactly one llm-generation
// job exists per request; its Dependencies list every preprocessing job
// created for the same request. Preprocessing jobs have no dependencies.
type Job struct {
	ID           string          `json:"id"`
	Type         JobType         `json:"type"`
	RequestID    string          `json:"requestId"`
	State        JobState        `json:"state"`
	Dependencies []JobDependency `json:"dependencies,omitempty"`

	// Attachments carried by preprocessing jobs. Audio jobs carry exactly
	// one; image jobs batch every image of the request.
	Attachments []Attachment `json:"attachments,omitempty"`

	// AttachmentIndex is the position of an audio attachment within the
	// request's attachment list. Used to build deterministic result keys.
	AttachmentIndex int `json:"attachmentIndex,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// ResultStatus is the delivery state of a stored job result.
type ResultStatus string

const (
	ResultPendingDelivery ResultStatus = "PENDING_DELIVERY"
	ResultDelivered       ResultStatus = "DELIVERED"
)

// ImageDescription is one successfully described image from an
// image-description job.
type ImageDescription struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// PreprocessingResult is the outcome of an audio-transcription or
// image-description job, stored in the result store under the job's
// result key.
type PreprocessingResult struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`

	// Descriptions holds the per-image outputs of image-description jobs.
	Descriptions []ImageDescription `json:"descriptions,omitempty"`

	// Metadata carries counters such as imageCount, failedCount, and
	// processingTimeMs.
	Metadata PreprocessingMetadata `json:"metadata,omitempty"`
}

// PreprocessingMetadata accounts for partial failure in batched jobs.
type PreprocessingMetadata struct {
	ImageCount       int   `json:"imageCount,omitempty"`
	FailedCount      int   `json:"failedCount"`
	ProcessingTimeMs int64 `json:"processingTimeMs,omitempty"`
}

// GenerationResult is the terminal record of an llm-generation job, stored
// with status PENDING_DELIVERY and published on the result stream.
type GenerationResult struct {
	RequestID string `json:"requestId"`
	JobID     string `json:"jobId"`
	Success   bool   `json:"success"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`

	AttachmentDescriptions         string `json:"attachmentDescriptions,omitempty"`
	ReferencedMessagesDescriptions string `json:"referencedMessagesDescriptions,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Persona is a user's self-description supplied to the model as third-party
// context. Distinct from [Personality]: the persona is who the user is, the
// personality is who the assistant is.
type Persona struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`

	// DiscordUsername disambiguates the display name when it collides with
	// the active personality's name.
	DiscordUsername string `json:"discordUsername,omitempty"`

	Description string `json:"description,omitempty"`
}

// ConfigOverrides is a partial bag of LLM parameters attached at one cascade
// tier. Resolution walks personality → channel → user → admin → defaults and
// takes the first non-nil value per field.
type ConfigOverrides struct {
	// Tier is one of "admin", "user", "channel", "personality".
	Tier string `json:"tier"`

	// OwnerID identifies the tier instance (user id, channel id, or
	// personality id). Empty for the admin singleton.
	OwnerID string `json:"ownerId,omitempty"`

	Params LLMParams `json:"params"`

	UpdatedAt time.Time `json:"updatedAt"`
}

package jobs

import (
	"errors"
	"testing"

	"github.com/animus-ai/animus/pkg/types"
)

func audioAttachment(name string) types.Attachment {
	return types.Attachment{URL: "https://cdn.test/" + name, Name: name, ContentType: "audio/ogg"}
}

func imageAttachment(name string) types.Attachment {
	return types.Attachment{URL: "https://cdn.test/" + name, Name: name, ContentType: "image/png"}
}

func TestPlan(t *testing.T) {
	baseReq := func() types.Request {
		return types.Request{
			RequestID: "req-1",
			Message:   "hello",
		}
	}

	t.Run("text-only request yields single generation job", func(t *testing.T) {
		planned, err := Plan(baseReq())
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		if len(planned) != 1 {
			t.Fatalf("planned %d jobs, want 1", len(planned))
		}
		gen := planned[0]
		if gen.ID != "llm-req-1" {
			t.Errorf("generation job id = %q, want 'llm-req-1'", gen.ID)
		}
		if gen.Type != types.JobLLMGeneration {
			t.Errorf("generation job type = %q", gen.Type)
		}
		if len(gen.Dependencies) != 0 {
			t.Errorf("generation job has %d dependencies, want 0", len(gen.Dependencies))
		}
	})

	t.Run("one job per audio attachment", func(t *testing.T) {
		req := baseReq()
		req.Context.Attachments = []types.Attachment{
			audioAttachment("a.ogg"), audioAttachment("b.ogg"),
		}

		planned, err := Plan(req)
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		if len(planned) != 3 {
			t.Fatalf("planned %d jobs, want 3", len(planned))
		}
		for i := 0; i < 2; i++ {
			job := planned[i]
			if job.Type != types.JobAudioTranscription {
				t.Errorf("job %d type = %q", i, job.Type)
			}
			if job.AttachmentIndex != i {
				t.Errorf("job %d attachment index = %d, want %d", i, job.AttachmentIndex, i)
			}
			if len(job.Attachments) != 1 {
				t.Errorf("job %d carries %d attachments, want 1", i, len(job.Attachments))
			}
		}

		gen := planned[2]
		if len(gen.Dependencies) != 2 {
			t.Fatalf("generation job has %d dependencies, want 2", len(gen.Dependencies))
		}
		if gen.Dependencies[0].ResultKey != "req-1:audio-transcription:0" {
			t.Errorf("dependency 0 result key = %q", gen.Dependencies[0].ResultKey)
		}
		if gen.Dependencies[1].ResultKey != "req-1:audio-transcription:1" {
			t.Errorf("dependency 1 result key = %q", gen.Dependencies[1].ResultKey)
		}
	})

	t.Run("images batch into one job", func(t *testing.T) {
		req := baseReq()
		req.Context.Attachments = []types.Attachment{
			imageAttachment("a.png"), imageAttachment("b.png"), imageAttachment("c.png"),
		}

		planned, err := Plan(req)
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		if len(planned) != 2 {
			t.Fatalf("planned %d jobs, want 2", len(planned))
		}
		img := planned[0]
		if img.Type != types.JobImageDescription {
			t.Errorf("job type = %q", img.Type)
		}
		if len(img.Attachments) != 3 {
			t.Errorf("image job carries %d attachments, want 3", len(img.Attachments))
		}
		gen := planned[1]
		if len(gen.Dependencies) != 1 || gen.Dependencies[0].ResultKey != "req-1:image-description" {
			t.Errorf("generation dependencies = %+v", gen.Dependencies)
		}
	})

	t.Run("referenced-message images get their own job", func(t *testing.T) {
		req := baseReq()
		req.Context.Attachments = []types.Attachment{imageAttachment("mine.png")}
		req.Context.ReferencedMessages = []types.ReferencedMessage{
			{
				AuthorName: "Robin",
				Content:    "look at these",
				Attachments: []types.Attachment{
					imageAttachment("theirs.png"),
					{URL: "https://cdn.test/notes.txt", ContentType: "text/plain"},
				},
			},
		}

		planned, err := Plan(req)
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		if len(planned) != 3 {
			t.Fatalf("planned %d jobs, want 3", len(planned))
		}

		ref := planned[1]
		if ref.ID != "image-description-req-1-ref" {
			t.Errorf("referenced image job id = %q", ref.ID)
		}
		if len(ref.Attachments) != 1 || ref.Attachments[0].Name != "theirs.png" {
			t.Errorf("referenced image job attachments = %+v", ref.Attachments)
		}

		gen := planned[2]
		if len(gen.Dependencies) != 2 {
			t.Fatalf("generation job has %d dependencies, want 2", len(gen.Dependencies))
		}
		if gen.Dependencies[0].ResultKey != "req-1:image-description" {
			t.Errorf("dependency 0 result key = %q", gen.Dependencies[0].ResultKey)
		}
		if gen.Dependencies[1].ResultKey != "req-1:image-description:ref" {
			t.Errorf("dependency 1 result key = %q", gen.Dependencies[1].ResultKey)
		}
	})

	t.Run("mixed audio and image rejected", func(t *testing.T) {
		req := baseReq()
		req.Context.Attachments = []types.Attachment{
			audioAttachment("a.ogg"), imageAttachment("b.png"),
		}

		if _, err := Plan(req); !errors.Is(err, ErrInvalidAttachmentType) {
			t.Fatalf("Plan() error = %v, want ErrInvalidAttachmentType", err)
		}
	})

	t.Run("unknown content type rejected", func(t *testing.T) {
		req := baseReq()
		req.Context.Attachments = []types.Attachment{
			{URL: "https://cdn.test/x.pdf", ContentType: "application/pdf"},
		}

		if _, err := Plan(req); !errors.Is(err, ErrInvalidAttachmentType) {
			t.Fatalf("Plan() error = %v, want ErrInvalidAttachmentType", err)
		}
	})

	t.Run("planning is deterministic", func(t *testing.T) {
		req := baseReq()
		req.Context.Attachments = []types.Attachment{audioAttachment("a.ogg")}

		first, err := Plan(req)
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		second, err := Plan(req)
		if err != nil {
			t.Fatalf("Plan() error = %v", err)
		}
		for i := range first {
			if first[i].ID != second[i].ID {
				t.Errorf("job %d id differs between plans: %q vs %q", i, first[i].ID, second[i].ID)
			}
		}
	})
}

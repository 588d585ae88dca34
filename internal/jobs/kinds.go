package jobs

import (
	"fmt"
	"strings"

	"genqueue/internal/domain"
)

const (
	imagePollAttempts = 30
	videoPollAttempts = 60
)

var (
	imageAspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4", "3:2", "2:3"}
	videoAspectRatios = []string{"16:9", "9:16", "1:1"}
	imageFormats      = []string{"webp", "png", "jpg"}
	faceSwapGenders   = []string{"male", "female", "none"}
)

// KindHandler owns the kind-specific parts of the shared submit, poll and
// materialize pipeline.
type KindHandler interface {
	Kind() domain.JobKind
	// Normalize validates snake_case input parameters and returns them with
	// defaults applied.
	Normalize(prompt string, params map[string]any) (map[string]any, error)
	// ProviderInput maps a persisted job onto the provider's input schema.
	ProviderInput(job *domain.Job) map[string]any
	Model() string
	PollAttempts() int
	// InlineFields lists provider input fields that may carry base64 payloads.
	InlineFields() []string
}

// Models names the provider model used for each kind.
type Models struct {
	Image    string
	Video    string
	Audio    string
	LipSync  string
	FaceSwap string
}

// Registry resolves the handler for a logical kind.
type Registry struct {
	handlers map[domain.JobKind]KindHandler
}

func NewRegistry(models Models) *Registry {
	r := &Registry{handlers: make(map[domain.JobKind]KindHandler)}
	for _, h := range []KindHandler{
		imageHandler{model: models.Image},
		videoHandler{model: models.Video},
		audioHandler{model: models.Audio},
		lipSyncHandler{model: models.LipSync},
		faceSwapHandler{model: models.FaceSwap},
	} {
		r.handlers[h.Kind()] = h
	}
	return r
}

func (r *Registry) Handler(kind domain.JobKind) (KindHandler, error) {
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidJobType, kind)
	}
	return h, nil
}

func copyParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

type imageHandler struct{ model string }

func (imageHandler) Kind() domain.JobKind { return domain.JobKindImage }
func (h imageHandler) Model() string { return h.model }
func (imageHandler) PollAttempts() int { return imagePollAttempts }
func (imageHandler) InlineFields() []string { return []string{"image"} }

func (imageHandler) Normalize(prompt string, params map[string]any) (map[string]any, error) {
	out := copyParams(params)
	errs := fieldErrors{}

	aspect := paramString(params, "aspect_ratio")
	switch {
	case aspect == "":
		out["aspect_ratio"] = "1:1"
	case !oneOf(aspect, imageAspectRatios):
		errs.add("aspect_ratio", "must be one of %s", strings.Join(imageAspectRatios, ", "))
	}

	n, set, err := paramInt(params, "num_outputs")
	switch {
	case err != nil:
		errs.add("num_outputs", "%s", err.Error())
	case !set:
		out["num_outputs"] = 1
	case n < 1 || n > 4:
		errs.add("num_outputs", "must be between 1 and 4")
	default:
		out["num_outputs"] = n
	}

	if format := paramString(params, "output_format"); format != "" && !oneOf(format, imageFormats) {
		errs.add("output_format", "must be one of %s", strings.Join(imageFormats, ", "))
	}
	for _, field := range []string{"image", "reference_image"} {
		if v := paramString(params, field); v != "" && !isMediaReference(v) {
			errs.add(field, "must be a URL or base64 image")
		}
	}
	return out, errs.err()
}

func (imageHandler) ProviderInput(job *domain.Job) map[string]any {
	p := job.InputParameters
	input := map[string]any{
		"prompt":       job.Prompt,
		"aspect_ratio": p["aspect_ratio"],
		"num_outputs":  p["num_outputs"],
	}
	if f := paramString(p, "output_format"); f != "" {
		input["output_format"] = f
	}
	if img := paramString(p, "image"); img != "" {
		input["image"] = img
	} else if ref := paramString(p, "reference_image"); ref != "" {
		input["image"] = ref
	}
	return input
}

type videoHandler struct{ model string }

func (videoHandler) Kind() domain.JobKind { return domain.JobKindVideo }
func (h videoHandler) Model() string { return h.model }
func (videoHandler) PollAttempts() int { return videoPollAttempts }
func (videoHandler) InlineFields() []string { return []string{"start_image", "reference_images"} }

func (videoHandler) Normalize(prompt string, params map[string]any) (map[string]any, error) {
	out := copyParams(params)
	errs := fieldErrors{}

	d, set, err := paramInt(params, "duration")
	switch {
	case err != nil:
		errs.add("duration", "%s", err.Error())
	case !set:
		out["duration"] = 5
	case d != 5 && d != 10:
		errs.add("duration", "must be 5 or 10 seconds")
	default:
		out["duration"] = d
	}

	aspect := paramString(params, "aspect_ratio")
	switch {
	case aspect == "":
		out["aspect_ratio"] = "16:9"
	case !oneOf(aspect, videoAspectRatios):
		errs.add("aspect_ratio", "must be one of %s", strings.Join(videoAspectRatios, ", "))
	}
	if v := paramString(params, "start_image"); v != "" && !isMediaReference(v) {
		errs.add("start_image", "must be a URL or base64 image")
	}

	refs, ok := paramStrings(params, "reference_images")
	if !ok {
		errs.add("reference_images", "must be a list of URLs or base64 images")
	}
	if v := paramString(params, "reference_image"); v != "" {
		refs = append(refs, v)
	}
	delete(out, "reference_image")
	delete(out, "reference_images")
	for _, ref := range refs {
		if !isMediaReference(ref) {
			errs.add("reference_images", "must be a list of URLs or base64 images")
			break
		}
	}
	if len(refs) > 0 {
		out["reference_images"] = refs
	}
	return out, errs.err()
}

func (videoHandler) ProviderInput(job *domain.Job) map[string]any {
	p := job.InputParameters
	input := map[string]any{
		"prompt":       job.Prompt,
		"duration":     p["duration"],
		"aspect_ratio": p["aspect_ratio"],
	}
	if v := paramString(p, "negative_prompt"); v != "" {
		input["negative_prompt"] = v
	}
	if v := paramString(p, "start_image"); v != "" {
		input["start_image"] = v
	}
	if refs, _ := paramStrings(p, "reference_images"); len(refs) > 0 {
		input["reference_images"] = refs
	}
	return input
}

type audioHandler struct{ model string }

func (audioHandler) Kind() domain.JobKind { return domain.JobKindAudio }
func (h audioHandler) Model() string { return h.model }
func (audioHandler) PollAttempts() int { return videoPollAttempts }
func (audioHandler) InlineFields() []string { return []string{"input_audio"} }

func (audioHandler) Normalize(prompt string, params map[string]any) (map[string]any, error) {
	out := copyParams(params)
	errs := fieldErrors{}
	d, set, err := paramInt(params, "duration")
	switch {
	case err != nil:
		errs.add("duration", "%s", err.Error())
	case !set:
		out["duration"] = 8
	case d < 1 || d > 30:
		errs.add("duration", "must be between 1 and 30 seconds")
	default:
		out["duration"] = d
	}
	if v := paramString(params, "input_audio"); v != "" && !isMediaReference(v) {
		errs.add("input_audio", "must be a URL or base64 audio")
	}
	return out, errs.err()
}

func (audioHandler) ProviderInput(job *domain.Job) map[string]any {
	input := map[string]any{
		"prompt":        job.Prompt,
		"duration":      job.InputParameters["duration"],
		"output_format": "mp3",
	}
	if v := paramString(job.InputParameters, "input_audio"); v != "" {
		input["input_audio"] = v
	}
	return input
}

type lipSyncHandler struct{ model string }

func (lipSyncHandler) Kind() domain.JobKind { return domain.JobKindLipSync }
func (h lipSyncHandler) Model() string { return h.model }
func (lipSyncHandler) PollAttempts() int { return videoPollAttempts }
func (lipSyncHandler) InlineFields() []string { return []string{"video_url", "audio_file"} }

func (lipSyncHandler) Normalize(prompt string, params map[string]any) (map[string]any, error) {
	out := copyParams(params)
	errs := fieldErrors{}
	video := paramString(params, "video_url")
	switch {
	case video == "":
		errs.add("video_url", "is required")
	case !isMediaReference(video):
		errs.add("video_url", "must be a URL or base64 video")
	}
	if audio := paramString(params, "audio_file"); audio != "" && !isMediaReference(audio) {
		errs.add("audio_file", "must be a URL or base64 audio")
	}
	for k, v := range domain.JobKindLipSync.AliasFlags() {
		out[k] = v
	}
	return out, errs.err()
}

// ProviderInput speaks the prompt when no audio track was supplied.
func (lipSyncHandler) ProviderInput(job *domain.Job) map[string]any {
	p := job.InputParameters
	input := map[string]any{"video_url": paramString(p, "video_url")}
	if audio := paramString(p, "audio_file"); audio != "" {
		input["audio_file"] = audio
	} else {
		input["text"] = job.Prompt
	}
	if voice := paramString(p, "voice_id"); voice != "" {
		input["voice_id"] = voice
	}
	return input
}

type faceSwapHandler struct{ model string }

func (faceSwapHandler) Kind() domain.JobKind { return domain.JobKindFaceSwap }
func (h faceSwapHandler) Model() string { return h.model }
func (faceSwapHandler) PollAttempts() int { return imagePollAttempts }
func (faceSwapHandler) InlineFields() []string { return []string{"input_image", "swap_image"} }

func (faceSwapHandler) Normalize(prompt string, params map[string]any) (map[string]any, error) {
	out := copyParams(params)
	errs := fieldErrors{}
	for _, field := range []string{"input_image", "swap_image"} {
		v := paramString(params, field)
		switch {
		case v == "":
			errs.add(field, "is required")
		case !isMediaReference(v):
			errs.add(field, "must be a URL or base64 image")
		}
	}
	gender := strings.ToLower(paramString(params, "gender"))
	switch {
	case gender == "":
		out["gender"] = "none"
	case !oneOf(gender, faceSwapGenders):
		errs.add("gender", "must be one of %s", strings.Join(faceSwapGenders, ", "))
	default:
		out["gender"] = gender
	}
	for k, v := range domain.JobKindFaceSwap.AliasFlags() {
		out[k] = v
	}
	return out, errs.err()
}

func (faceSwapHandler) ProviderInput(job *domain.Job) map[string]any {
	p := job.InputParameters
	input := map[string]any{
		"input_image": paramString(p, "input_image"),
		"swap_image":  paramString(p, "swap_image"),
	}
	if g := paramString(p, "gender"); g != "" && g != "none" {
		input["gender"] = g
	}
	if style := paramString(p, "style"); style != "" {
		input["style"] = style
	} else if paramBool(p, "use_prompt_as_style") {
		input["style"] = job.Prompt
	}
	return input
}

package llm

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"google.golang.org/api/option"
	unifiedgenai "google.golang.org/genai"
)

// maxGeminiResponseLogBytes is the max length of a Gemini response body to log in full (to avoid huge logs).
const maxGeminiResponseLogBytes = 8192

// httpClientForEndpoint returns an http.Client that rewrites request URLs to the given base endpoint (e.g. http://host.docker.internal:31300/gemini).
func httpClientForEndpoint(baseEndpoint string) *http.Client {
	base, err := url.Parse(baseEndpoint)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", baseEndpoint).Msg("Invalid GEMINI_API_ENDPOINT, using default")
		return nil
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	return &http.Client{
		Transport: &endpointRoundTripper{base: base, next: http.DefaultTransport},
	}
}

// endpointRoundTripper rewrites request URLs to a custom base (scheme, host, path prefix).
type endpointRoundTripper struct {
	base *url.URL
	next http.RoundTripper
}

func (e *endpointRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.URL.Scheme = e.base.Scheme
	req2.URL.Host = e.base.Host
	req2.URL.Path = path.Join(e.base.Path, strings.TrimPrefix(req.URL.Path, "/"))
	if req.URL.RawQuery != "" {
		req2.URL.RawQuery = req.URL.RawQuery
	}
	return e.next.RoundTrip(req2)
}

// logGeminiResponse logs Gemini response text, truncating if over maxGeminiResponseLogBytes.
func logGeminiResponse(caller, raw string) {
	if len(raw) <= maxGeminiResponseLogBytes {
		log.Info().Str("caller", caller).Str("gemini_response", raw).Msg("Gemini response")
		return
	}
	log.Info().
		Str("caller", caller).
		Str("gemini_response", raw[:maxGeminiResponseLogBytes]+"... [truncated]").
		Int("gemini_response_len", len(raw)).
		Msg("Gemini response")
}

// Client wraps the Gemini API clients used by the tale pipeline.
type Client struct {
	apiKey        string
	modelPrimary  string // primary story model, e.g. gemini-3-pro-preview
	modelFallback string // fallback story model, e.g. gemini-2.5-flash-lite
	modelImage    string // image generation, e.g. gemini-3-pro-image-preview
	modelTTS      string // TTS model, e.g. gemini-2.5-pro-preview-tts
	ttsVoice      string // TTS voice name, e.g. Zephyr, Puck, Aoede
	ttsMaxInput   int    // TTS input cap in characters
	language      string // target language for generated tales
	temperature   float64
	maxTokens     int
	llmPrimary    llms.Model
	llmFallback   llms.Model
	genaiClient   *genai.Client        // for image modality
	unifiedClient *unifiedgenai.Client // unified genai SDK for TTS
}

// Options configures a Client.
// APIEndpoint: optional Gemini API base URL; when set, all Gemini calls use this endpoint.
type Options struct {
	APIKey        string
	APIEndpoint   string
	ModelPrimary  string
	ModelFallback string
	ModelImage    string
	ModelTTS      string
	TTSVoice      string
	TTSMaxInput   int
	Language      string
	Temperature   float64
	MaxTokens     int
}

// NewClient creates a new LLM client for story, image and speech generation.
func NewClient(opts Options) *Client {
	if opts.ModelPrimary == "" {
		opts.ModelPrimary = "gemini-3-pro-preview"
	}
	if opts.ModelFallback == "" {
		opts.ModelFallback = "gemini-2.5-flash-lite"
	}
	if opts.ModelImage == "" {
		opts.ModelImage = "gemini-3-pro-image-preview"
	}
	if opts.ModelTTS == "" {
		opts.ModelTTS = "gemini-2.5-pro-preview-tts"
	}
	if opts.TTSVoice == "" {
		opts.TTSVoice = "Zephyr"
	}
	if opts.TTSMaxInput <= 0 {
		opts.TTSMaxInput = defaultTTSMaxInput
	}
	if opts.Language == "" {
		opts.Language = "Russian"
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.9
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 600
	}

	// Optional custom HTTP client for langchaingo when using a custom endpoint
	var langchaingoHTTPClient *http.Client
	if opts.APIEndpoint != "" {
		langchaingoHTTPClient = httpClientForEndpoint(opts.APIEndpoint)
	}

	// Primary story model
	primaryOpts := []googleai.Option{googleai.WithAPIKey(opts.APIKey), googleai.WithDefaultModel(opts.ModelPrimary)}
	if langchaingoHTTPClient != nil {
		primaryOpts = append(primaryOpts, googleai.WithHTTPClient(langchaingoHTTPClient))
	}
	llmPrimary, err := googleai.New(context.Background(), primaryOpts...)
	if err != nil {
		log.Error().Err(err).Str("model", opts.ModelPrimary).Msg("Failed to initialize primary story model")
	}

	// Fallback story model
	fallbackOpts := []googleai.Option{googleai.WithAPIKey(opts.APIKey), googleai.WithDefaultModel(opts.ModelFallback)}
	if langchaingoHTTPClient != nil {
		fallbackOpts = append(fallbackOpts, googleai.WithHTTPClient(langchaingoHTTPClient))
	}
	llmFallback, err := googleai.New(context.Background(), fallbackOpts...)
	if err != nil {
		log.Error().Err(err).Str("model", opts.ModelFallback).Msg("Failed to initialize fallback story model")
	}

	// genai client for strict modality (IMAGE); requires API key
	var genaiClient *genai.Client
	if opts.APIKey != "" {
		genaiOpts := []option.ClientOption{option.WithAPIKey(opts.APIKey)}
		if opts.APIEndpoint != "" {
			genaiOpts = append(genaiOpts, option.WithEndpoint(opts.APIEndpoint))
		}
		genaiClient, err = genai.NewClient(context.Background(), genaiOpts...)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize genai client for image generation")
		}
	}

	// Unified genai client for TTS with response_modalities: audio
	var unifiedClient *unifiedgenai.Client
	if opts.APIKey != "" {
		unifiedCfg := &unifiedgenai.ClientConfig{APIKey: opts.APIKey}
		if opts.APIEndpoint != "" {
			unifiedCfg.HTTPOptions = unifiedgenai.HTTPOptions{BaseURL: opts.APIEndpoint}
		}
		unifiedClient, err = unifiedgenai.NewClient(context.Background(), unifiedCfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize unified genai client for TTS")
		}
	}

	log.Info().
		Str("model_primary", opts.ModelPrimary).
		Str("model_fallback", opts.ModelFallback).
		Str("model_image", opts.ModelImage).
		Str("model_tts", opts.ModelTTS).
		Str("tts_voice", opts.TTSVoice).
		Str("language", opts.Language).
		Str("api_endpoint", opts.APIEndpoint).
		Bool("genai_client", genaiClient != nil).
		Bool("unified_tts", unifiedClient != nil).
		Msg("LLM client initialized")

	return &Client{
		apiKey:        opts.APIKey,
		modelPrimary:  opts.ModelPrimary,
		modelFallback: opts.ModelFallback,
		modelImage:    opts.ModelImage,
		modelTTS:      opts.ModelTTS,
		ttsVoice:      opts.TTSVoice,
		ttsMaxInput:   opts.TTSMaxInput,
		language:      opts.Language,
		temperature:   opts.Temperature,
		maxTokens:     opts.MaxTokens,
		llmPrimary:    llmPrimary,
		llmFallback:   llmFallback,
		genaiClient:   genaiClient,
		unifiedClient: unifiedClient,
	}
}

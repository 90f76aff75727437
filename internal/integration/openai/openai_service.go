package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Commands the agent can return
const (
	CommandAssessWaterQuality = "AssessWaterQuality"
	CommandGeneralQuery       = "GeneralQuery"
)

// AgentResponse defines the structured output from the OpenAI agent.
type AgentResponse struct {
	CommandName      string  `json:"command_name" jsonschema_description:"The command to execute, AssessWaterQuality or GeneralQuery"`
	PH               float64 `json:"ph" jsonschema_description:"Water pH mentioned by the user, 0 if not given"`
	DissolvedOxygen  float64 `json:"dissolved_oxygen" jsonschema_description:"Dissolved oxygen in mg/L mentioned by the user, 0 if not given"`
	Ammonia          float64 `json:"ammonia" jsonschema_description:"Ammonia (NH3) in mg/L mentioned by the user, 0 if not given"`
	ReadingsComplete bool    `json:"readings_complete" jsonschema_description:"True only if the user gave all three readings"`
	UserMessage      string  `json:"user_message" jsonschema_description:"A message to show back to the user in their original language"`
}

// QueryInterpreter turns free text into an AgentResponse.
type QueryInterpreter interface {
	InterpretUserQuery(ctx context.Context, userMessage string) (*AgentResponse, error)
}

// openAIServiceImpl implements the QueryInterpreter interface.
type openAIServiceImpl struct {
	client openai.Client
	schema interface{}
}

// GenerateSchema generates a JSON schema for a given type.
func GenerateSchema[T any]() interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

// NewOpenAIService creates a QueryInterpreter backed by the OpenAI API.
func NewOpenAIService(apiKey string) (QueryInterpreter, error) {
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))

	return &openAIServiceImpl{
		client: client,
		schema: GenerateSchema[AgentResponse](),
	}, nil
}

const systemPrompt = `You are a practical aquaculture assistant for fish and shrimp pond farmers.

Your job is to read a farmer's message and decide whether they gave water-quality readings to assess.

Behavior:
1. If the message contains water readings (pH, dissolved oxygen / DO in mg/L, ammonia / NH3 in mg/L):
   - command_name = "AssessWaterQuality"
   - Fill ph, dissolved_oxygen and ammonia with the numbers given, converting units to mg/L when needed.
   - readings_complete = true only if all three were given; otherwise set the missing ones to 0,
     readings_complete = false, and ask for the missing values in user_message.
   - user_message: a short confirmation in the user's language.
2. Anything else (greetings, general pond questions):
   - command_name = "GeneralQuery", all readings 0, readings_complete = false
   - user_message: a short helpful answer in the user's language. Mention /predict <ph> <do> <nh3>
     when the user seems to want an assessment.

Output **strictly** in JSON.`

// InterpretUserQuery sends a message to the OpenAI agent and returns the structured response.
func (s *openAIServiceImpl) InterpretUserQuery(ctx context.Context, userMessage string) (*AgentResponse, error) {
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "agent_response",
		Description: openai.String("Structured response containing command, water readings, and user message"),
		Schema:      s.schema,
		Strict:      openai.Bool(true),
	}

	respFormat := openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{JSONSchema: schemaParam},
	}

	chat, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userMessage),
		},
		ResponseFormat: respFormat,
		Model:          openai.ChatModelGPT4o,
	})
	if err != nil {
		return nil, fmt.Errorf("error calling OpenAI API: %w", err)
	}

	if len(chat.Choices) == 0 || chat.Choices[0].Message.Content == "" {
		return nil, errors.New("received empty response from OpenAI")
	}

	return ParseAgentResponse(chat.Choices[0].Message.Content)
}

// ParseAgentResponse decodes the agent's JSON reply.
func ParseAgentResponse(content string) (*AgentResponse, error) {
	var agentResp AgentResponse
	if err := json.Unmarshal([]byte(content), &agentResp); err != nil {
		log.Printf("Failed to unmarshal OpenAI response: %s\nRaw response: %s", err, content)
		return nil, fmt.Errorf("error unmarshalling OpenAI response: %w", err)
	}
	return &agentResp, nil
}

package mustach

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name           string
		level          LogLevel
		expectedOutput []string
		notExpected    []string
	}{
		{
			name:  "debug level shows all messages",
			level: LogDebug,
			expectedOutput: []string{
				"[DEBUG]", "debug message",
				"[INFO]", "info message",
				"[WARN]", "warn message",
				"[ERROR]", "error message",
			},
		},
		{
			name:  "info level hides debug messages",
			level: LogInfo,
			expectedOutput: []string{
				"[INFO]", "info message",
				"[WARN]", "warn message",
				"[ERROR]", "error message",
			},
			notExpected: []string{"[DEBUG]", "debug message"},
		},
		{
			name:           "off level shows nothing",
			level:          LogOff,
			expectedOutput: nil,
			notExpected:    []string{"[DEBUG]", "[INFO]", "[WARN]", "[ERROR]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, tt.level)
			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")

			output := buf.String()
			for _, expected := range tt.expectedOutput {
				require.Contains(t, output, expected)
			}
			for _, notExpected := range tt.notExpected {
				require.NotContains(t, output, notExpected)
			}
		})
	}
}

func TestLogger_DebugFrame(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogDebug)

	logger.DebugFrame(OpSectionStart, "report.mustache", 3)

	output := buf.String()
	require.Contains(t, output, "[DEBUG]")
	require.Contains(t, output, "op=SECTION_START")
	require.Contains(t, output, "template=report.mustache")
	require.Contains(t, output, "depth=3")
}

func TestLogger_DebugFrameSilentAboveDebugLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogInfo)

	logger.DebugFrame(OpSectionGoto, "row.mustache", 2)

	require.Empty(t, buf.String())
}

func TestLogger_DebugPartial(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogDebug)

	logger.DebugPartial("row.mustache", true)
	logger.DebugPartial("header.mustache", false)

	output := buf.String()
	require.Contains(t, output, "name=row.mustache")
	require.Contains(t, output, "deduped=true")
	require.Contains(t, output, "name=header.mustache")
	require.Contains(t, output, "deduped=false")
}

func TestLogger_DebugDelimiter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogDebug)

	logger.DebugDelimiter("page.mustache", "<%", "%>")

	output := buf.String()
	require.Contains(t, output, "start=<%")
	require.Contains(t, output, "end=%>")
	require.Contains(t, output, "template=page.mustache")
}

func TestLogger_StructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogDebug)

	logger.WithFields(Fields{
		"template": "report.mustache",
		"depth":    2,
	}).Debug("frame")

	output := buf.String()
	require.Contains(t, output, "template=report.mustache")
	require.Contains(t, output, "depth=2")
}

func TestLogger_FieldChaining(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogDebug)

	logger.
		WithField("template", "page.mustache").
		WithField("op", "SECTION_GOTO").
		WithFields(Fields{"depth": 4}).
		Debug("frame")

	output := buf.String()
	for _, field := range []string{"template=page.mustache", "op=SECTION_GOTO", "depth=4"} {
		require.Contains(t, output, field)
	}
}

func TestLogger_IsDebugMode(t *testing.T) {
	logger := NewLogger(nil, LogDebug)
	require.True(t, logger.IsDebugMode())

	logger.SetLevel(LogInfo)
	require.False(t, logger.IsDebugMode())
}

func TestGlobalLogger(t *testing.T) {
	original := globalLogger
	defer func() { globalLogger = original }()

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, LogDebug))

	Debug("test debug")
	Info("test info")

	output := buf.String()
	require.Contains(t, output, "[DEBUG] test debug")
	require.Contains(t, output, "[INFO] test info")
}

// TestCompile_EmitsFrameTrace exercises the logger through the compiler
// rather than calling its methods directly: enabling debug logging on the
// loader's logger should surface one frame-push line per template/partial
// entered and one delimiter-change line, in compile order.
func TestCompile_EmitsFrameTrace(t *testing.T) {
	original := globalLogger
	defer func() { globalLogger = original }()

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, LogDebug))

	resolver := MapResolver{
		"row.mustache":  []byte("<{{.}}>"),
		"page.mustache": []byte("{{=<% %>=}}<%#items%><%>row.mustache%><%/items%>"),
	}
	_, err := NewLoader(resolver).CompileFile("page.mustache")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)

	var sawPageFrame, sawPartialDedupOrFresh, sawDelimiter bool
	for _, line := range lines {
		if strings.Contains(line, "op=SECTION_START") && strings.Contains(line, "template=page.mustache") {
			sawPageFrame = true
		}
		if strings.Contains(line, "name=row.mustache") {
			sawPartialDedupOrFresh = true
		}
		if strings.Contains(line, "start=<%") && strings.Contains(line, "end=%>") {
			sawDelimiter = true
		}
	}
	require.True(t, sawPageFrame, "expected a frame trace line for page.mustache, got: %s", buf.String())
	require.True(t, sawPartialDedupOrFresh, "expected a partial trace line for row.mustache, got: %s", buf.String())
	require.True(t, sawDelimiter, "expected a delimiter-change trace line, got: %s", buf.String())
}

// TestEvaluate_EmitsSectionTrace mirrors TestCompile_EmitsFrameTrace for
// the evaluator: pushing and popping a repeated section at render time
// should produce SECTION_START/SECTION_END frame lines.
func TestEvaluate_EmitsSectionTrace(t *testing.T) {
	original := globalLogger
	defer func() { globalLogger = original }()

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, LogDebug))

	p := mustCompile(t, "trace.mustache", "{{#items}}x{{/items}}")
	_, err := Render(p, map[string]any{"items": []any{"a", "b"}})
	require.NoError(t, err)

	output := buf.String()
	require.Contains(t, output, "op=SECTION_START")
	require.Contains(t, output, "op=SECTION_END")
}

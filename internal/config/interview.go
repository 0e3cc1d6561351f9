package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/z-interview/backend/internal/model/interview"
)

// DefaultTestAccount 是不受"已完成"检查限制的测试用户名。
const DefaultTestAccount = "testaccount"

// InterviewConfig 描述访谈内容：人设提示词、结束码、头像与登录信息。
type InterviewConfig struct {
	Title           string                  `yaml:"title"`
	SystemPrompt    string                  `yaml:"system_prompt"`
	ClosingMessages []interview.ClosingCode `yaml:"closing_messages"`
	Avatars         Avatars                 `yaml:"avatars"`
	Logins          bool                    `yaml:"logins"`
	Passwords       map[string]string       `yaml:"passwords"`
	TestAccount     string                  `yaml:"test_account"`
}

// Avatars 是页面上访谈者与受访者的头像。
type Avatars struct {
	Interviewer string `yaml:"interviewer" json:"interviewer"`
	Respondent  string `yaml:"respondent" json:"respondent"`
}

// DefaultInterview 返回内置的访谈配置。
func DefaultInterview() InterviewConfig {
	return InterviewConfig{
		Title:        "Interview",
		SystemPrompt: defaultSystemPrompt,
		ClosingMessages: []interview.ClosingCode{
			{Code: "5j3k", Message: "Thank you for participating, the interview concludes here."},
			{Code: "x7y8", Message: "Thank you for participating in the interview, this was the last question. Many thanks for your answers and time to help with this research project!"},
		},
		Avatars: Avatars{
			Interviewer: "🎓",
			Respondent:  "👤",
		},
		TestAccount: DefaultTestAccount,
	}
}

// LoadInterview 读取 YAML 访谈配置；文件不存在时使用内置默认值。
func LoadInterview(path string) (InterviewConfig, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultInterview(), nil
	}
	if err != nil {
		return InterviewConfig{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadInterviewFromReader(f)
	if err != nil {
		return InterviewConfig{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadInterviewFromReader 解码 YAML，并用默认值补齐缺省字段。
func LoadInterviewFromReader(r io.Reader) (InterviewConfig, error) {
	cfg := DefaultInterview()
	// 显式给出的列表整体替换默认结束码，而不是合并。
	cfg.ClosingMessages = nil

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return InterviewConfig{}, fmt.Errorf("config: decode yaml: %w", err)
	}

	if len(cfg.ClosingMessages) == 0 {
		cfg.ClosingMessages = DefaultInterview().ClosingMessages
	}
	if strings.TrimSpace(cfg.TestAccount) == "" {
		cfg.TestAccount = DefaultTestAccount
	}
	if strings.TrimSpace(cfg.SystemPrompt) == "" {
		return InterviewConfig{}, fmt.Errorf("config: system_prompt must not be empty")
	}

	seen := make(map[string]bool, len(cfg.ClosingMessages))
	for i, c := range cfg.ClosingMessages {
		if c.Code == "" || c.Message == "" {
			return InterviewConfig{}, fmt.Errorf("config: closing_messages[%d] needs both code and message", i)
		}
		if seen[c.Code] {
			return InterviewConfig{}, fmt.Errorf("config: duplicate closing code %q", c.Code)
		}
		seen[c.Code] = true
	}

	if err := cfg.checkLogins(); err != nil {
		return InterviewConfig{}, err
	}

	return cfg, nil
}

// checkLogins 拒绝开启登录却没有任何密码的配置。
func (c InterviewConfig) checkLogins() error {
	if c.Logins && len(c.Passwords) == 0 {
		return fmt.Errorf("config: logins enabled but no passwords configured")
	}
	return nil
}

const defaultSystemPrompt = `You are a professor at one of the world's leading research universities, specializing in qualitative research methods with a focus on conducting interviews. In the following, you will conduct an interview with {name}, who works at {company}, about their experience and motivations at work.

Interview outline:
- Begin by asking the respondent to briefly describe their current role and responsibilities.
- Ask about how they came to this job and what motivates them in it.
- Explore the challenges they face and how they deal with them.
- Conclude by asking whether there is anything else they would like to add.

General instructions:
- Ask one question at a time and never ask more than one question per message.
- Guide the interview in a non-directive and non-leading way.
- Ask follow-up questions where the answers are vague or general, and ask for concrete examples.
- Do not number your questions and do not use bullet points.

Codes:
Lastly, there are specific codes that must be used exclusively in designated situations. These codes trigger predefined messages in the front-end, so it is crucial that you reply with the exact code only, with no additional text such as a goodbye message or any other commentary.

Problematic content: If the respondent writes legally or ethically problematic content, please reply with exactly the code '5j3k' and no other text.

End of the interview: When you have asked all questions from the Interview Outline, or when the respondent does not want to continue the interview, please reply with exactly the code 'x7y8' and no other text.`

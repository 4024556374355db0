package drafting

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"lexdraft-bff/internal/domain/entity"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// ParseTemplateJSON 解析生成接口返回的 template_json
// 支持对象、序列化后的 JSON 字符串以及已解码的 map；任何失败都返回空 map
func ParseTemplateJSON(raw any) map[string]any {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	case string:
		return parseTemplateBytes([]byte(v))
	case json.RawMessage:
		return parseTemplateBytes(v)
	case []byte:
		return parseTemplateBytes(v)
	default:
		return map[string]any{}
	}
}

func parseTemplateBytes(b []byte) map[string]any {
	text := strings.TrimSpace(string(b))
	if text == "" || text == "null" {
		return map[string]any{}
	}

	// 外层是 JSON 字符串时再解一层
	if strings.HasPrefix(text, `"`) {
		var inner string
		if err := sonic.UnmarshalString(text, &inner); err != nil {
			return map[string]any{}
		}
		text = strings.TrimSpace(inner)
	}

	out := map[string]any{}
	if err := sonic.UnmarshalString(text, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// ExtractVariables 从 template_json.variables 提取变量表
// variables 可以是以变量名为键的对象，也可以是带 name 字段的数组
func ExtractVariables(tpl map[string]any) map[string]entity.Variable {
	vars := map[string]entity.Variable{}

	switch list := tpl["variables"].(type) {
	case map[string]any:
		for name, def := range list {
			vars[name] = toVariable(name, def)
		}
	case []any:
		for _, item := range list {
			def, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name, _ := def["name"].(string)
			if name == "" {
				continue
			}
			vars[name] = toVariable(name, def)
		}
	}
	return vars
}

func toVariable(name string, def any) entity.Variable {
	v := entity.Variable{Value: "", Editable: true, Type: "text", Label: Humanize(name)}

	m, ok := def.(map[string]any)
	if !ok {
		// 简写形式：变量名直接映射到值
		if def != nil {
			v.Value = def
		}
		return v
	}
	if val, ok := m["value"]; ok && val != nil {
		v.Value = val
	}
	if editable, ok := m["editable"].(bool); ok {
		v.Editable = editable
	}
	if typ, ok := m["type"].(string); ok && typ != "" {
		v.Type = typ
	}
	if label, ok := m["label"].(string); ok && label != "" {
		v.Label = label
	}
	return v
}

// ReconcilePlaceholders 为 HTML 中出现但变量表缺失的 {{name}} 补齐默认变量
// 返回按名称排序的补齐列表；vars 会被原地修改
func ReconcilePlaceholders(html string, vars map[string]entity.Variable) []string {
	var added []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(html, -1) {
		name := m[1]
		if _, ok := vars[name]; ok {
			continue
		}
		vars[name] = entity.Variable{
			Value:    "",
			Editable: true,
			Type:     "text",
			Label:    Humanize(name),
		}
		added = append(added, name)
	}
	sort.Strings(added)
	return added
}

// Humanize 每个下划线替换为一个空格，并将各段首字母大写
func Humanize(name string) string {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToUpper(r)) + p[size:]
	}
	return strings.Join(parts, " ")
}

// reconcile 解析 template_json 并补齐变量，返回完整文档
func reconcile(html string, templateJSON any, docMetadata, pipelineMetrics map[string]any) *entity.GeneratedDocument {
	tpl := ParseTemplateJSON(templateJSON)
	vars := ExtractVariables(tpl)
	added := ReconcilePlaceholders(html, vars)

	return &entity.GeneratedDocument{
		HTMLContent:          html,
		TemplateJSON:         tpl,
		Variables:            vars,
		DocMetadata:          docMetadata,
		PipelineMetrics:      pipelineMetrics,
		SynthesizedVariables: added,
	}
}

package threatmodel

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/opendeepwiki/deepresearch/internal/domain"
	"github.com/opendeepwiki/deepresearch/internal/utils"
)

// Threagile input.yaml 的子集：数据资产、技术资产（含通信链路）、信任边界

type DataAsset struct {
	ID              string `yaml:"id" json:"id"`
	Description     string `yaml:"description,omitempty" json:"description,omitempty"`
	Confidentiality string `yaml:"confidentiality,omitempty" json:"confidentiality,omitempty"`
	Integrity       string `yaml:"integrity,omitempty" json:"integrity,omitempty"`
	Availability    string `yaml:"availability,omitempty" json:"availability,omitempty"`
}

type CommunicationLink struct {
	Target             string   `yaml:"target" json:"target"`
	Description        string   `yaml:"description,omitempty" json:"description,omitempty"`
	Protocol           string   `yaml:"protocol,omitempty" json:"protocol,omitempty"`
	Authentication     string   `yaml:"authentication,omitempty" json:"authentication,omitempty"`
	Authorization      string   `yaml:"authorization,omitempty" json:"authorization,omitempty"`
	DataAssetsSent     []string `yaml:"data_assets_sent,omitempty" json:"data_assets_sent,omitempty"`
	DataAssetsReceived []string `yaml:"data_assets_received,omitempty" json:"data_assets_received,omitempty"`
}

type TechnicalAsset struct {
	ID                 string                       `yaml:"id" json:"id"`
	Description        string                       `yaml:"description,omitempty" json:"description,omitempty"`
	Type               string                       `yaml:"type,omitempty" json:"type,omitempty"`
	Technology         string                       `yaml:"technology,omitempty" json:"technology,omitempty"`
	Machine            string                       `yaml:"machine,omitempty" json:"machine,omitempty"`
	Encryption         string                       `yaml:"encryption,omitempty" json:"encryption,omitempty"`
	Confidentiality    string                       `yaml:"confidentiality,omitempty" json:"confidentiality,omitempty"`
	Integrity          string                       `yaml:"integrity,omitempty" json:"integrity,omitempty"`
	Availability       string                       `yaml:"availability,omitempty" json:"availability,omitempty"`
	CommunicationLinks map[string]CommunicationLink `yaml:"communication_links,omitempty" json:"communication_links,omitempty"`
}

type TrustBoundary struct {
	ID                    string   `yaml:"id" json:"id"`
	Description           string   `yaml:"description,omitempty" json:"description,omitempty"`
	Type                  string   `yaml:"type,omitempty" json:"type,omitempty"`
	TechnicalAssetsInside []string `yaml:"technical_assets_inside,omitempty" json:"technical_assets_inside,omitempty"`
}

// Diagram 结构化导入形态的数据流图
type Diagram struct {
	DataAssets      map[string]DataAsset      `yaml:"data_assets" json:"data_assets"`
	TechnicalAssets map[string]TechnicalAsset `yaml:"technical_assets" json:"technical_assets"`
	TrustBoundaries map[string]TrustBoundary  `yaml:"trust_boundaries" json:"trust_boundaries"`
}

// ParseDiagram 从生成器输出中解析 Threagile YAML。
// 图表为 Mermaid 或文本图时返回 ErrNotStructuredDiagram。
func ParseDiagram(text string) (*Diagram, error) {
	body := utils.ExtractYAML(text, "data_assets", "technical_assets", "trust_boundaries")
	var d Diagram
	if err := yaml.Unmarshal([]byte(body), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotStructuredDiagram, err)
	}
	if len(d.TechnicalAssets) == 0 {
		return nil, fmt.Errorf("%w: no technical_assets section", ErrNotStructuredDiagram)
	}
	return &d, nil
}

// DerivableNames 技术资产可推导出的符号名：显式 id 以及 key 的 slug 形式
func (d *Diagram) DerivableNames() map[string]struct{} {
	names := make(map[string]struct{}, len(d.TechnicalAssets)*2)
	for key, asset := range d.TechnicalAssets {
		if asset.ID != "" {
			names[asset.ID] = struct{}{}
		}
		if slug := Slugify(key); slug != "" {
			names[slug] = struct{}{}
		}
	}
	return names
}

// Validate 检查图内部的引用：链路目标、传输的数据资产、边界内的技术资产都必须已声明
func (d *Diagram) Validate() []domain.Violation {
	assets := make(map[string]bool)
	for _, ta := range d.TechnicalAssets {
		assets[ta.ID] = true
	}
	data := make(map[string]bool)
	for _, da := range d.DataAssets {
		data[da.ID] = true
	}

	var violations []domain.Violation
	for _, key := range sortedKeys(d.TechnicalAssets) {
		ta := d.TechnicalAssets[key]
		if ta.ID == "" {
			violations = append(violations, domain.Violation{
				Path:    "technical_assets." + key,
				Message: "technical asset has no id",
			})
		}
		for _, linkKey := range sortedKeys(ta.CommunicationLinks) {
			link := ta.CommunicationLinks[linkKey]
			path := fmt.Sprintf("technical_assets.%s.communication_links.%s", key, linkKey)
			if !assets[link.Target] {
				violations = append(violations, domain.Violation{
					Path:    path + ".target",
					Message: fmt.Sprintf("link target '%s' is not a declared technical asset", link.Target),
				})
			}
			for _, id := range append(append([]string{}, link.DataAssetsSent...), link.DataAssetsReceived...) {
				if !data[id] {
					violations = append(violations, domain.Violation{
						Path:    path,
						Message: fmt.Sprintf("data asset '%s' is not declared", id),
					})
				}
			}
		}
	}
	for _, key := range sortedKeys(d.TrustBoundaries) {
		for _, id := range d.TrustBoundaries[key].TechnicalAssetsInside {
			if !assets[id] {
				violations = append(violations, domain.Violation{
					Path:    "trust_boundaries." + key + ".technical_assets_inside",
					Message: fmt.Sprintf("technical asset '%s' is not declared", id),
				})
			}
		}
	}
	return violations
}

// CheckConsistency 威胁模型中的组件符号名必须能从图的技术资产推导出来
func CheckConsistency(doc any, d *Diagram) []domain.Violation {
	derivable := d.DerivableNames()
	var violations []domain.Violation
	for i, name := range SymbolicNames(doc, "components") {
		if _, ok := derivable[name]; !ok {
			violations = append(violations, domain.Violation{
				Path:    fmt.Sprintf("/components/%d/symbolic_name", i),
				Message: fmt.Sprintf("component '%s' is not derivable from the diagram's technical assets", name),
			})
		}
	}
	return violations
}

// Slugify 把 "WebApp"、"API Gateway"、"user_db" 转成 ^[0-9a-z-]+$ 形式
func Slugify(s string) string {
	runes := []rune(s)
	var b strings.Builder
	pendingHyphen := false
	isUpper := func(r rune) bool { return r >= 'A' && r <= 'Z' }
	isLower := func(r rune) bool { return r >= 'a' && r <= 'z' }
	isDigit := func(r rune) bool { return r >= '0' && r <= '9' }

	for i, r := range runes {
		switch {
		case isUpper(r):
			if i > 0 && b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && isLower(runes[i+1])
				if isLower(prev) || isDigit(prev) || (isUpper(prev) && nextLower) {
					pendingHyphen = true
				}
			}
			if pendingHyphen {
				b.WriteByte('-')
				pendingHyphen = false
			}
			b.WriteRune(r - 'A' + 'a')
		case isLower(r), isDigit(r):
			if pendingHyphen {
				b.WriteByte('-')
				pendingHyphen = false
			}
			b.WriteRune(r)
		default:
			if b.Len() > 0 {
				pendingHyphen = true
			}
		}
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

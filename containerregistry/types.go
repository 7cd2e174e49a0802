// Package containerregistry defines container registries and their webhooks.
//
// Webhooks are child resources: they are queued on the registry definition or
// update and flushed right after the registry itself is committed.
package containerregistry

const (
	ResourceType = "Microsoft.ContainerRegistry/registries"
	webhookType  = "webhooks"
)

type SkuName string

const (
	SkuClassic  SkuName = "Classic"
	SkuBasic    SkuName = "Basic"
	SkuStandard SkuName = "Standard"
	SkuPremium  SkuName = "Premium"
)

func PossibleSkuNameValues() []SkuName {
	return []SkuName{SkuClassic, SkuBasic, SkuStandard, SkuPremium}
}

func (s SkuName) IsKnown() bool {
	for _, v := range PossibleSkuNameValues() {
		if v == s {
			return true
		}
	}
	return false
}

type WebhookAction string

const (
	WebhookActionPush        WebhookAction = "push"
	WebhookActionDelete      WebhookAction = "delete"
	WebhookActionQuarantine  WebhookAction = "quarantine"
	WebhookActionChartPush   WebhookAction = "chart_push"
	WebhookActionChartDelete WebhookAction = "chart_delete"
)

func PossibleWebhookActionValues() []WebhookAction {
	return []WebhookAction{
		WebhookActionPush,
		WebhookActionDelete,
		WebhookActionQuarantine,
		WebhookActionChartPush,
		WebhookActionChartDelete,
	}
}

func (a WebhookAction) IsKnown() bool {
	for _, v := range PossibleWebhookActionValues() {
		if v == a {
			return true
		}
	}
	return false
}

type WebhookStatus string

const (
	WebhookStatusEnabled  WebhookStatus = "enabled"
	WebhookStatusDisabled WebhookStatus = "disabled"
)

func PossibleWebhookStatusValues() []WebhookStatus {
	return []WebhookStatus{WebhookStatusEnabled, WebhookStatusDisabled}
}

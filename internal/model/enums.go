package model

type CodeState string

const (
	CodeStateOpen   CodeState = "open"
	CodeStatePaired CodeState = "paired"
)

type BindOutcome string

const (
	BindOutcomeBound         BindOutcome = "bound"
	BindOutcomeAlreadyMember BindOutcome = "already_member"
	BindOutcomeAlreadyPaired BindOutcome = "already_paired"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSending NotificationStatus = "sending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

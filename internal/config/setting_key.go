package config

// Setting keys persisted in app_settings.
type SettingKeyStruct struct {
	TimePerQuestionSec string
	ProctoringMode     string
}

var SettingKey = &SettingKeyStruct{
	TimePerQuestionSec: "time_per_question_sec",
	ProctoringMode:     "proctoring_mode",
}

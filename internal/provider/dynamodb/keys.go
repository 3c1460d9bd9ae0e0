package dynamodb

// PK/SK prefix constants.
const (
	prefixSubject      = "SUBJECT#"
	prefixStudent      = "STUDENT#"
	prefixAttendance   = "ATTENDANCE#"
	prefixNotification = "NOTIFICATION#"
	prefixType         = "TYPE#"

	pkWatermark       = "CONFIG#attendance"
	skMeta            = "META"
	skGlobalStreak    = "STREAK#GLOBAL"
	skWatermark       = "WATERMARK"
	typeSubject       = prefixType + "subject"
	typeNotification  = prefixType + "notification"
	gsiName           = "GSI1"
	attrData          = "data"
	attrStreak        = "streak"
	attrLastDate      = "lastDate"
	attrResolved      = "resolved"
	attrVersion       = "version"
	batchGetChunkSize = 100
)

func subjectPK(id string) string { return prefixSubject + id }
func studentPK(id string) string { return prefixStudent + id }
func studentSK(id string) string { return prefixStudent + id }

func attendancePK(date, subjectID string) string {
	return prefixAttendance + date + "#" + subjectID
}

func notificationSK(id string) string { return prefixNotification + id }

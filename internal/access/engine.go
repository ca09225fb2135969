package access

import (
	"time"

	"github.com/inodev-web/alouaoui-school-sub001/internal/model"
)

// Capabilities is the per-request access decision for one (account, teacher)
// pair.
type Capabilities struct {
	Videos   bool `json:"videos"`
	Lives    bool `json:"lives"`
	Physical bool `json:"physical"`
}

// Decide computes capability grants from the account role, the teacher policy
// discriminator and the (possibly absent) subscription. Pure: absence of a
// subscription is a denial, never an error.
//
// Non-Alouaoui teachers are in-person only: digital capabilities stay false
// no matter what flags the subscription carries.
func Decide(account model.Account, teacher model.Teacher, sub *model.Subscription, now time.Time) Capabilities {
	if account.Role == model.RoleAdmin {
		return Capabilities{Videos: true, Lives: true, Physical: true}
	}
	if sub == nil || !sub.EffectiveAt(now) {
		return Capabilities{}
	}
	if teacher.IsAlouaouiTeacher {
		return Capabilities{
			Videos:   sub.VideosAccess,
			Lives:    sub.LivesAccess,
			Physical: sub.SchoolEntryAccess,
		}
	}
	return Capabilities{Physical: sub.SchoolEntryAccess}
}

package lms

// CoursePage is the courses list envelope; it nests paging under "pagination".
type CoursePage struct {
	Results    []Course `json:"results"`
	Pagination struct {
		Count    int     `json:"count"`
		NumPages int     `json:"num_pages"`
		Next     *string `json:"next"`
	} `json:"pagination"`
}

// Course is one course run as listed by the LMS.
type Course struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	ShortDescription string  `json:"short_description"`
	Start            *string `json:"start"`
	End              *string `json:"end"`
	EnrollmentStart  *string `json:"enrollment_start"`
	EnrollmentEnd    *string `json:"enrollment_end"`
	Pacing           string  `json:"pacing"`
	License          string  `json:"license"`
	MobileAvailable  bool    `json:"mobile_available"`
	InvitationOnly   bool    `json:"invitation_only"`
	Hidden           bool    `json:"hidden"`
	Media            Media   `json:"media"`
}

type Media struct {
	Image struct {
		Raw string `json:"raw"`
	} `json:"image"`
	CourseVideo struct {
		URI *string `json:"uri"`
	} `json:"course_video"`
}

type CourseDetail struct {
	ID       string `json:"id"`
	Overview string `json:"overview"`
}

type Block struct {
	ID          string   `json:"id"`
	BlockID     string   `json:"block_id"`
	Type        string   `json:"type"`
	DisplayName string   `json:"display_name"`
	LMSWebURL   string   `json:"lms_web_url"`
	Children    []string `json:"children"`
}

type Blocks struct {
	Root   string           `json:"root"`
	Blocks map[string]Block `json:"blocks"`
}

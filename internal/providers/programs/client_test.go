package programs

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestProgramKeys(t *testing.T) {
	body := `{
		"uuid": "d8a5b4f1-2c3e-4f5a-9b8c-7d6e5f4a3b2c",
		"name": "Data Science",
		"marketing_slug": "data-science",
		"banner_image_urls": {"w1440h480": "https://img/banner.jpg"},
		"organizations": [{"key": "MITx"}, {"key": "HarvardX"}],
		"course_codes": [
			{"run_modes": [{"course_key": "course-v1:MITx+DS1+1T2024"}, {"course_key": "course-v1:MITx+DS1+2T2024"}]},
			{"run_modes": [{"course_key": "course-v1:HarvardX+DS2+1T2024"}]}
		]
	}`
	var p Program
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !reflect.DeepEqual(p.OrganizationKeys(), []string{"MITx", "HarvardX"}) {
		t.Errorf("Unexpected organization keys %v", p.OrganizationKeys())
	}
	expected := []string{"course-v1:MITx+DS1+1T2024", "course-v1:MITx+DS1+2T2024", "course-v1:HarvardX+DS2+1T2024"}
	if !reflect.DeepEqual(p.RunKeys(), expected) {
		t.Errorf("Unexpected run keys %v", p.RunKeys())
	}
	if p.BannerImageURLs[BannerSize] != "https://img/banner.jpg" {
		t.Errorf("Unexpected banner %v", p.BannerImageURLs)
	}
}

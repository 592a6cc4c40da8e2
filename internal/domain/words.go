package domain

// Category is a named word list for one round.
type Category struct {
	Name  string
	Words []string
}

// Categories is the fixed category set rounds are drawn from.
var Categories = []Category{
	{Name: "음식", Words: []string{"피자", "치킨", "떡볶이", "김치찌개", "짜장면", "삼겹살", "김밥", "라면", "김치볶음밥", "된장찌개"}},
	{Name: "동물", Words: []string{"강아지", "고양이", "토끼", "사자", "호랑이", "코끼리", "펭귄", "돌고래", "원숭이", "기린"}},
	{Name: "장소", Words: []string{"학교", "병원", "공원", "영화관", "카페", "도서관", "마트", "해변", "놀이동산", "산"}},
	{Name: "스포츠", Words: []string{"축구", "농구", "야구", "테니스", "수영", "볼링", "탁구", "배드민턴", "스키", "골프"}},
}

// FindCategory returns the category with the given name, or nil.
func FindCategory(name string) *Category {
	for i := range Categories {
		if Categories[i].Name == name {
			return &Categories[i]
		}
	}
	return nil
}

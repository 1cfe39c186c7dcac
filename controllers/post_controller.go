package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ideahub/ideahub/config"
	"github.com/ideahub/ideahub/middleware"
	"github.com/ideahub/ideahub/models"
	"github.com/ideahub/ideahub/utils"
)

// PostController manages CRUD operations for posts, votes, likes and comments.
type PostController struct {
	db  *gorm.DB
	cfg config.AppConfig
}

// NewPostController creates a new PostController instance.
func NewPostController(db *gorm.DB, cfg config.AppConfig) *PostController {
	return &PostController{db: db, cfg: cfg}
}

// postPayload is the JSON document carried in the multipart "post" field on
// create and update. Clients send the post body and the resource file in the
// same form.
type postPayload struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Author         models.Author     `json:"author"`
	Tags           models.StringList `json:"tags"`
	Business       models.StringList `json:"business"`
	Status         string            `json:"status"`
	Content        string            `json:"content"`
	Timestamp      *time.Time        `json:"timestamp"`
	RemoveResource bool              `json:"removeResource"`
}

// CreatePost creates a post from the multipart "post" JSON field with an
// optional "resource" file attachment.
func (p *PostController) CreatePost(ctx *gin.Context) {
	raw := ctx.PostForm("post")
	if raw == "" {
		utils.Error(ctx, http.StatusBadRequest, 40020, "post data is missing or invalid")
		return
	}

	var req postPayload
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "post data is missing or invalid")
		return
	}

	title := utils.Sanitize(strings.TrimSpace(req.Title))
	content := utils.Sanitize(req.Content)
	if req.ID == "" || title == "" || content == "" || req.Author.ID == "" || req.Author.Name == "" {
		utils.Error(ctx, http.StatusBadRequest, 40021, "missing required fields: id, title, author, or content")
		return
	}

	post := models.Post{
		ExternalID: req.ID,
		Title:      title,
		Content:    content,
		Author:     req.Author,
		Tags:       req.Tags,
		Business:   req.Business,
		Status:     req.Status,
		Likes:      models.StringList{},
	}
	if req.Timestamp != nil {
		post.Timestamp = *req.Timestamp
	}

	if header, err := ctx.FormFile("resource"); err == nil {
		path, err := utils.SaveResource(header, p.cfg.UploadDir)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40022, "failed to store resource file")
			return
		}
		post.Resource = path
	}

	if err := p.db.Create(&post).Error; err != nil {
		utils.RemoveFileAsync(post.Resource)
		utils.Error(ctx, http.StatusInternalServerError, 50020, "failed to create post")
		return
	}

	p.invalidatePostCaches(post.ID)

	utils.Respond(ctx, http.StatusCreated, 0, "post created successfully", gin.H{"post": post})
}

// ListAllPosts returns every post including comments.
func (p *PostController) ListAllPosts(ctx *gin.Context) {
	const cacheKey = "cache:posts:list:all"
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var posts []models.Post
	if err := p.db.Preload("Comments").Order("created_at DESC").Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to list posts")
		return
	}

	payload := gin.H{"posts": posts}
	utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, time.Hour)
	utils.Success(ctx, payload)
}

// ListLimitedPosts returns at most the number of posts given by the
// "n-posts" request header.
func (p *PostController) ListLimitedPosts(ctx *gin.Context) {
	n, err := strconv.Atoi(strings.TrimSpace(ctx.GetHeader("n-posts")))
	if err != nil || n <= 0 {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid number of posts requested")
		return
	}

	var posts []models.Post
	if err := p.db.Preload("Comments").Order("created_at DESC").Limit(n).Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list posts")
		return
	}
	utils.Success(ctx, gin.H{"posts": posts})
}

// ListPostsByTag filters posts on membership of the "tag" header in the tags set.
func (p *PostController) ListPostsByTag(ctx *gin.Context) {
	tag := strings.TrimSpace(ctx.GetHeader("tag"))
	if tag == "" {
		utils.Error(ctx, http.StatusBadRequest, 40024, "tag is required in the headers")
		return
	}
	p.listByMembership(ctx, "tags", tag)
}

// ListPostsByBusiness filters posts on membership of the "business" header.
func (p *PostController) ListPostsByBusiness(ctx *gin.Context) {
	business := strings.TrimSpace(ctx.GetHeader("business"))
	if business == "" {
		utils.Error(ctx, http.StatusBadRequest, 40025, "business is required in the headers")
		return
	}
	p.listByMembership(ctx, "business", business)
}

// listByMembership matches a quoted element inside the JSON array column.
func (p *PostController) listByMembership(ctx *gin.Context, column, value string) {
	var posts []models.Post
	quoted, err := json.Marshal(value)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40026, "invalid filter value")
		return
	}
	q := p.db.Preload("Comments").Order("created_at DESC").
		Where(column+" LIKE ?", "%"+string(quoted)+"%")
	if err := q.Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to list posts")
		return
	}
	utils.Success(ctx, gin.H{"posts": posts})
}

// GetPost returns a single post with its comments.
func (p *PostController) GetPost(ctx *gin.Context) {
	postID, ok := parsePathID(ctx, "postId")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40410, "post not found")
		return
	}

	cacheKey := "cache:post:detail:" + strconv.FormatUint(uint64(postID), 10)
	if b, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(http.StatusOK, "application/json", b)
		return
	}

	var post models.Post
	if err := p.db.Preload("Comments").First(&post, postID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40410, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to load post")
		return
	}

	payload := gin.H{"post": post}
	utils.CacheSetJSON(cacheKey, utils.JSONResponse{Code: 0, Message: "success", Data: payload}, time.Hour)
	utils.Success(ctx, payload)
}

// ListUserPosts returns posts authored by the user given in the userId query
// parameter. An empty result is reported as not found; existing clients
// depend on that convention.
func (p *PostController) ListUserPosts(ctx *gin.Context) {
	userID := strings.TrimSpace(ctx.Query("userId"))
	if userID == "" {
		utils.Error(ctx, http.StatusBadRequest, 40027, "user id is required")
		return
	}

	var posts []models.Post
	if err := p.db.Preload("Comments").Where("author_id = ?", userID).Order("created_at DESC").Find(&posts).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to list user posts")
		return
	}
	if len(posts) == 0 {
		utils.Error(ctx, http.StatusNotFound, 40411, "no posts found for this user")
		return
	}
	utils.Success(ctx, gin.H{"posts": posts})
}

// UpdatePost updates a post's fields and optionally replaces or removes its
// resource file. Only the author or a moderator/admin may update a post.
func (p *PostController) UpdatePost(ctx *gin.Context) {
	raw := ctx.PostForm("post")
	if raw == "" {
		utils.Error(ctx, http.StatusBadRequest, 40028, "post data is missing or invalid")
		return
	}
	var req postPayload
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40028, "post data is missing or invalid")
		return
	}

	title := utils.Sanitize(strings.TrimSpace(req.Title))
	content := utils.Sanitize(req.Content)
	if title == "" || content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40029, "title and content are required")
		return
	}

	postID, ok := parsePathID(ctx, "postId")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40412, "post not found")
		return
	}
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40412, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50026, "failed to load post")
		return
	}

	if !canEditPost(ctx, post) {
		utils.Error(ctx, http.StatusForbidden, 40310, "you can only update your own posts")
		return
	}

	// Resource handling: a new file supersedes the old one; an explicit
	// removal flag clears it; otherwise it is left untouched.
	if header, err := ctx.FormFile("resource"); err == nil {
		path, err := utils.SaveResource(header, p.cfg.UploadDir)
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40030, "failed to store resource file")
			return
		}
		utils.RemoveFileAsync(post.Resource)
		post.Resource = path
	} else if req.RemoveResource {
		utils.RemoveFileAsync(post.Resource)
		post.Resource = ""
	}

	post.Title = title
	post.Content = content
	post.Tags = req.Tags
	post.Business = req.Business
	if req.Status != "" {
		post.Status = req.Status
	}

	if err := p.db.Save(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50027, "failed to update post")
		return
	}

	p.invalidatePostCaches(post.ID)

	utils.Success(ctx, gin.H{"post": post})
}

// DeletePost removes a post, its comments and its resource file.
func (p *PostController) DeletePost(ctx *gin.Context) {
	postID, ok := parsePathID(ctx, "postId")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40413, "post not found")
		return
	}
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40413, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50028, "failed to load post")
		return
	}

	if err := p.db.Select("Comments").Delete(&post).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50029, "failed to delete post")
		return
	}

	utils.RemoveFileAsync(post.Resource)
	p.invalidatePostCaches(post.ID)

	utils.Success(ctx, gin.H{"message": "post deleted successfully"})
}

// UpdateUpvote adjusts the upvote counter by the signed increment.
func (p *PostController) UpdateUpvote(ctx *gin.Context) {
	p.updateVote(ctx, "upvotes")
}

// UpdateDownvote adjusts the downvote counter by the signed increment.
func (p *PostController) UpdateDownvote(ctx *gin.Context) {
	p.updateVote(ctx, "downvotes")
}

// updateVote applies the delta in a single UPDATE expression so concurrent
// votes never lose increments. Counters are clamped at zero.
func (p *PostController) updateVote(ctx *gin.Context, column string) {
	var req struct {
		Increment int `json:"increment"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid request payload")
		return
	}

	postID, ok := parsePathID(ctx, "postId")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40414, "post not found")
		return
	}
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40414, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50030, "failed to load post")
		return
	}

	expr := gorm.Expr(
		"CASE WHEN "+column+" + ? < 0 THEN 0 ELSE "+column+" + ? END",
		req.Increment, req.Increment,
	)
	if err := p.db.Model(&models.Post{}).Where("id = ?", post.ID).UpdateColumn(column, expr).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to update votes")
		return
	}

	if err := p.db.Preload("Comments").First(&post, post.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to reload post")
		return
	}

	p.invalidatePostCaches(post.ID)

	utils.Success(ctx, gin.H{"post": post})
}

// AddComment appends a comment to a post and returns the full updated post.
func (p *PostController) AddComment(ctx *gin.Context) {
	var req struct {
		ID      string `json:"id"`
		Author  string `json:"author"`
		Content string `json:"content"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil || req.ID == "" || req.Author == "" || req.Content == "" {
		utils.Error(ctx, http.StatusBadRequest, 40032, "id, author, and content are required fields")
		return
	}

	postID, ok := parsePathID(ctx, "postId")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40415, "post not found")
		return
	}
	var post models.Post
	if err := p.db.First(&post, postID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.Error(ctx, http.StatusNotFound, 40415, "post not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50033, "failed to load post")
		return
	}

	comment := models.Comment{
		PostID:    post.ID,
		CommentID: req.ID,
		Author:    req.Author,
		Content:   utils.Sanitize(req.Content),
	}
	if err := p.db.Create(&comment).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50034, "failed to create comment")
		return
	}

	if err := p.db.Preload("Comments").First(&post, post.ID).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50035, "failed to reload post")
		return
	}

	p.invalidatePostCaches(post.ID)

	utils.Success(ctx, gin.H{"message": "comment added successfully", "post": post})
}

// ToggleLike adds the user to the post's likes set, or removes them when
// already present. The write is a compare-and-swap against the value that was
// read, retried on contention, so concurrent toggles never clobber each other.
func (p *PostController) ToggleLike(ctx *gin.Context) {
	postID, ok := parsePathID(ctx, "postId")
	if !ok {
		utils.Error(ctx, http.StatusNotFound, 40416, "post not found")
		return
	}
	userID := ctx.Param("userId")

	const casAttempts = 5
	for attempt := 0; attempt < casAttempts; attempt++ {
		var post models.Post
		if err := p.db.First(&post, postID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				utils.Error(ctx, http.StatusNotFound, 40416, "post not found")
				return
			}
			utils.Error(ctx, http.StatusInternalServerError, 50036, "failed to load post")
			return
		}

		liked := post.Likes.Contains(userID)
		var updated models.StringList
		if liked {
			updated = post.Likes.Without(userID)
		} else {
			updated = append(post.Likes.Without(userID), userID)
		}

		res := p.db.Model(&models.Post{}).
			Where("id = ? AND likes = ?", post.ID, post.Likes).
			UpdateColumn("likes", updated)
		if res.Error != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50037, "failed to toggle like")
			return
		}
		if res.RowsAffected == 0 {
			// Lost the race against a concurrent toggle; re-read and retry.
			continue
		}

		p.invalidatePostCaches(post.ID)

		if liked {
			utils.Success(ctx, gin.H{"status": 0, "message": "post disliked successfully"})
		} else {
			utils.Success(ctx, gin.H{"status": 1, "message": "post liked successfully"})
		}
		return
	}

	utils.Error(ctx, http.StatusInternalServerError, 50038, "failed to toggle like, too much contention")
}

// invalidatePostCaches drops every cached response a post write can affect.
func (p *PostController) invalidatePostCaches(postID uint) {
	utils.InvalidateByPrefix("cache:posts:list")
	utils.InvalidateByPrefix("cache:post:detail:" + strconv.Itoa(int(postID)))
}

// canEditPost reports whether the caller authored the post or holds a
// moderator/admin role.
func canEditPost(ctx *gin.Context, post models.Post) bool {
	caller, ok := middleware.CurrentUser(ctx)
	if !ok {
		return false
	}
	if caller.IsModerator || caller.IsAdmin {
		return true
	}
	return post.Author.ID == strconv.Itoa(int(caller.ID))
}
